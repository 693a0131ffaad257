package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/romariotrain/media-pipeline/internal/objectstore"
	"github.com/romariotrain/media-pipeline/internal/upload"
)

// PresignPut signs a PUT for a new source object. The key is taken from the
// objectKey query parameter or generated from ext.
func (h *Handler) PresignPut(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("objectKey")
	if key == "" {
		key = h.newKey(r.URL.Query().Get("ext"))
	}

	url, err := h.store.PresignPutURL(r.Context(), key, h.ttl)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, PresignedURLResponse{URL: url, ObjectKey: key, ExpiresAt: h.now().Add(h.ttl)})
}

func (h *Handler) PresignGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		h.writeError(w, r, http.StatusBadRequest, "missing object key")
		return
	}

	url, err := h.store.PresignGetURL(r.Context(), key, h.ttl)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, PresignedURLResponse{URL: url, ObjectKey: key, ExpiresAt: h.now().Add(h.ttl)})
}

func (h *Handler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	var req CreateMultipartUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.ObjectName == "" {
		h.writeError(w, r, http.StatusBadRequest, "objectName is required")
		return
	}

	uploadID, err := h.store.InitiateMultipartUpload(r.Context(), req.ObjectName, req.ContentType)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Str("object_key", req.ObjectName).
		Str("upload_id", uploadID).
		Msg("multipart upload created")

	render.JSON(w, r, MultipartUploadResponse{UploadID: uploadID, ObjectName: req.ObjectName})
}

func (h *Handler) PresignPart(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uploadID, objectName := q.Get("uploadId"), q.Get("objectName")
	if uploadID == "" || objectName == "" {
		h.writeError(w, r, http.StatusBadRequest, "uploadId and objectName are required")
		return
	}
	part, err := strconv.ParseInt(q.Get("part"), 10, 32)
	if err != nil || part < 1 {
		h.writeError(w, r, http.StatusBadRequest, "part must be a positive integer")
		return
	}

	url, err := h.store.PresignPartUploadURL(r.Context(), objectName, uploadID, int32(part), h.ttl)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	render.JSON(w, r, PresignedURLResponse{URL: url, ObjectKey: objectName, ExpiresAt: h.now().Add(h.ttl)})
}

func (h *Handler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	var req CompleteMultipartUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.UploadID == "" || req.ObjectName == "" {
		h.writeError(w, r, http.StatusBadRequest, "uploadId and objectName are required")
		return
	}

	parts := make([]upload.CompletedPart, len(req.Parts))
	for i, p := range req.Parts {
		parts[i] = upload.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	sorted, err := upload.ValidateParts(parts, 0)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	storeParts := make([]objectstore.Part, len(sorted))
	for i, p := range sorted {
		storeParts[i] = objectstore.Part{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	info, err := h.store.CompleteMultipartUpload(r.Context(), req.ObjectName, req.UploadID, storeParts)
	if err != nil {
		if errors.Is(err, objectstore.ErrInvalidPart) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.writeServiceError(w, r, err)
		return
	}

	h.logger.Info().
		Str("object_key", req.ObjectName).
		Str("upload_id", req.UploadID).
		Int("parts", len(storeParts)).
		Msg("multipart upload completed")

	render.JSON(w, r, CompleteMultipartUploadResponse{ObjectName: req.ObjectName, ETag: info.ETag, VersionID: info.VersionID})
}

func (h *Handler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uploadID, objectName := q.Get("uploadId"), q.Get("objectName")
	if uploadID == "" || objectName == "" {
		h.writeError(w, r, http.StatusBadRequest, "uploadId and objectName are required")
		return
	}

	if err := h.store.AbortMultipartUpload(r.Context(), objectName, uploadID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
