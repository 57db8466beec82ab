package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every route together with the request id, panic recovery
// and access log middleware.
func NewRouter(opt Options) chi.Router {
	s := &server{opt: opt.withDefaults()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/healthz", handleHealthz)
	r.Method(http.MethodGet, "/metrics", s.opt.Metrics.Handler())
	r.Get("/sub", s.handleSub)
	r.Post("/api/convert", s.handleConvert)
	return r
}

type server struct {
	opt Options
}
