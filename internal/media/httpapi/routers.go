package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// RouterOption mounts extra handlers next to the API.
type RouterOption func(r chi.Router)

// WithObjectHandler serves signed object URLs under prefix, used with the
// in-memory store.
func WithObjectHandler(prefix string, h http.Handler) RouterOption {
	return func(r chi.Router) {
		r.Handle(prefix+"/*", http.StripPrefix(prefix, h))
	}
}

func NewRouter(h *Handler, opts ...RouterOption) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.Health)

	r.Route("/contents", func(r chi.Router) {
		r.Post("/", h.CreateContent)
		r.Get("/", h.ListContents)
		r.Get("/{id}", h.GetContent)
	})

	r.Route("/upload", func(r chi.Router) {
		r.Get("/presigned", h.PresignPut)
		r.Get("/presigned/*", h.PresignGet)
		r.Post("/multipart", h.CreateMultipartUpload)
		r.Get("/multipart/presigned", h.PresignPart)
		r.Post("/multipart/complete", h.CompleteMultipartUpload)
		r.Delete("/multipart", h.AbortMultipartUpload)
	})

	for _, opt := range opts {
		opt(r)
	}
	return r
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
