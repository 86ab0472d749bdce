package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"taskboard/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store  store.Store
	logger *log.Logger
}

// New creates a new Handlers instance. A nil logger falls back to the standard logrus logger.
func New(s store.Store, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Handlers{
		store:  s,
		logger: logger,
	}
}

// Routes mounts every task route on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/board", h.Board)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Patch("/", h.UpdateTask)
				r.Delete("/", h.DeleteTask)
				r.Post("/move", h.MoveTask)
				r.Put("/fields", h.PutCustomField)
				r.Delete("/fields/{name}", h.DeleteCustomField)
			})
		})
	})
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// parseID extracts and parses an integer ID from URL parameters.
func parseID(r *http.Request, param string) (int64, error) {
	idStr := chi.URLParam(r, param)
	return strconv.ParseInt(idStr, 10, 64)
}

// decodeJSON reads a single JSON document from the request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := sonic.ConfigStd.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondJSON writes v as a JSON response.
func (h *Handlers) respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := sonic.ConfigStd.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Warn("failed to encode response")
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(message))
}

// respondStoreError maps store failures to a 500 and logs them.
func (h *Handlers) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	entry := h.logger.WithError(err).WithField("path", r.URL.Path)
	var se *store.StorageError
	if errors.As(err, &se) {
		entry = entry.WithField("op", se.Op)
	}
	entry.Error("internal server error")
	respondError(w, http.StatusInternalServerError, "internal server error")
}
