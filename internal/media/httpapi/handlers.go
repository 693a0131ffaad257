package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romariotrain/media-pipeline/internal/media/domain"
	"github.com/romariotrain/media-pipeline/internal/media/models"
	"github.com/romariotrain/media-pipeline/internal/objectstore"
)

// ContentService is the catalog behaviour the handlers need.
type ContentService interface {
	CreateContent(ctx context.Context, kind models.ContentKind, objectKey string) (*models.Content, error)
	GetContent(ctx context.Context, id uuid.UUID) (*models.Content, error)
	ListContents(ctx context.Context, filter models.ListFilter) ([]models.Content, error)
}

type Handler struct {
	svc    ContentService
	store  objectstore.Store
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
	newKey func(ext string) string
}

func New(svc ContentService, store objectstore.Store, ttl time.Duration, logger zerolog.Logger) *Handler {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Handler{
		svc:    svc,
		store:  store,
		ttl:    ttl,
		logger: logger.With().Str("component", "httpapi").Logger(),
		now:    time.Now,
		newKey: SourceKey,
	}
}

// SourceKey names a new source object: a random UUID plus the original extension.
func SourceKey(ext string) string {
	if ext != "" && ext[0] != '.' {
		ext = "." + ext
	}
	return uuid.NewString() + ext
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}

	kind, err := models.ParseContentKind(req.ContentType)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.svc.CreateContent(r.Context(), kind, req.Key)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, toContentResponse(c))
}

func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid content id")
		return
	}

	c, err := h.svc.GetContent(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, toContentResponse(c))
}

func (h *Handler) ListContents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter models.ListFilter
	if s := q.Get("status"); s != "" {
		filter.Status = models.Status(s)
	}
	if k := q.Get("kind"); k != "" {
		kind, err := models.ParseContentKind(k)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		filter.Kind = kind
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid offset")
		return
	}

	items, err := h.svc.ListContents(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := ListContentsResponse{
		Items:  make([]ContentResponse, 0, len(items)),
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	for i := range items {
		resp.Items = append(resp.Items, toContentResponse(&items[i]))
	}
	render.JSON(w, r, resp)
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		h.writeError(w, r, http.StatusBadRequest, "invalid argument")
	case errors.Is(err, models.ErrUnknownContentKind):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound), errors.Is(err, objectstore.ErrNotFound), errors.Is(err, objectstore.ErrUploadNotFound):
		h.writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrConflict), errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, r, http.StatusConflict, "conflict")
	default:
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
