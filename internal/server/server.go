// Package server exposes the vault cache over a JSON HTTP API. Handlers are
// thin: validation and error codes live in the cache and lifecycle layers,
// this package only translates between HTTP and those calls.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/ksakata/vaultd/internal/effort"
	"github.com/ksakata/vaultd/internal/vault"
	"github.com/ksakata/vaultd/pkg/cerr"
	"github.com/ksakata/vaultd/pkg/clog"
)

// Server bundles the API dependencies and builds the router.
type Server struct {
	cache     *vault.Cache
	lifecycle *effort.Lifecycle
}

func New(cache *vault.Cache, lifecycle *effort.Lifecycle) *Server {
	return &Server{
		cache:     cache,
		lifecycle: lifecycle,
	}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)
	r.Use(clog.SlogChiMiddleware(clog.WithChiFilter(func(r *http.Request) bool {
		return r.URL.Path != "/healthz"
	})))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.handleListTasks)
			r.Post("/", s.handleAddTask)
			r.Get("/{id}", s.handleGetTask)
			r.Patch("/{id}", s.handleUpdateTask)
			r.Get("/{id}/blockers", s.handleTaskBlockers)
		})

		r.Route("/efforts", func(r chi.Router) {
			r.Get("/", s.handleListEfforts)
			r.Post("/", s.handleCreateEffort)
			r.Post("/scan", s.handleScanEfforts)
			r.Get("/{name}", s.handleGetEffort)
			r.Post("/{name}/move", s.handleMoveEffort)
		})

		r.Get("/focus", s.handleGetFocus)
		r.Put("/focus", s.handleSetFocus)
		r.Delete("/focus", s.handleClearFocus)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, s.cache.Status())
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps a coded error to its HTTP status; uncoded errors become
// 500s. The underlying error goes to the log, not the wire.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := cerr.CodeOf(err)
	status := code.HTTPStatus()
	clog.AddAttribute(r.Context(), clog.ErrorAttributeKey, err.Error())
	writeJSON(r.Context(), w, status, errorBody{
		Error: cerr.MessageOf(err),
		Code:  code.String(),
	})
}

// decodeJSON parses a request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body: "+err.Error(), err)
	}
	return nil
}
