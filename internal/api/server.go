// Package api serves the annotation engine over HTTP.
//
// Routes are scoped by dataset and record kind:
//
//	POST|PUT /{dataset}/{kind}                      write one object or a list
//	GET      /{dataset}/{kind}/id-number/{ids}      fetch comma-separated ids
//	DELETE   /{dataset}/{kind}/id-number/{id}       remove an id and its history
//	POST     /{dataset}/{kind}/query                query object or list of objects
//	GET      /{dataset}/{kind}/fields               field registry
//	GET|PUT  /{dataset}/{kind}/versions             version-tag registry
//	GET      /{dataset}/{kind}/head_tag, head_uuid
//	GET      /{dataset}/{kind}/tag_to_uuid/{tag}, uuid_to_tag/{uuid}
//	GET      /metrics                               Prometheus exposition
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/annostore/internal/annotations"
	"github.com/roach88/annostore/internal/metadata"
)

// UserHeader carries the writer identity when no UserFunc is configured.
const UserHeader = "X-Annostore-User"

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 32 << 20

// UserFunc extracts the writer identity from a request.
type UserFunc func(r *http.Request) string

// Server holds the HTTP handlers.
type Server struct {
	engine   *annotations.Engine
	registry *metadata.Registry
	logger   *slog.Logger
	user     UserFunc
	validate *validator.Validate
	gatherer prometheus.Gatherer
	metrics  *httpMetrics
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithUserFunc sets how the writer identity is read from requests.
func WithUserFunc(fn UserFunc) Option {
	return func(s *Server) { s.user = fn }
}

// WithPrometheus registers HTTP metrics with reg and serves g on /metrics.
func WithPrometheus(reg prometheus.Registerer, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = newHTTPMetrics(reg)
		s.gatherer = g
	}
}

// NewServer creates a Server over engine and registry.
func NewServer(engine *annotations.Engine, registry *metadata.Registry, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		registry: registry,
		logger:   slog.Default(),
		user:     headerUser,
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func headerUser(r *http.Request) string {
	return r.Header.Get(UserHeader)
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)
	r.Use(s.observe)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/{dataset}/{kind}", func(r chi.Router) {
		r.Post("/", s.handleWrite)
		r.Put("/", s.handleWrite)
		r.Get("/id-number/{ids}", s.handleFetch)
		r.Delete("/id-number/{id}", s.handleDelete)
		r.Post("/query", s.handleQuery)

		r.Get("/fields", s.handleFields)
		r.Get("/versions", s.handleVersions)
		r.Put("/versions", s.handlePublishVersions)
		r.Get("/head_tag", s.handleHeadTag)
		r.Get("/head_uuid", s.handleHeadUUID)
		r.Get("/tag_to_uuid/{tag}", s.handleTagToUUID)
		r.Get("/uuid_to_tag/{uuid}", s.handleUUIDToTag)
	})
	return r
}

// observe logs each request and records its metrics under the matched
// route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		s.metrics.observe(r.Method, route, strconv.Itoa(ww.Status()), elapsed)
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"duration", elapsed)
	})
}

func scopeOf(r *http.Request) annotations.Scope {
	return annotations.Scope{
		Dataset: chi.URLParam(r, "dataset"),
		Kind:    chi.URLParam(r, "kind"),
	}
}
