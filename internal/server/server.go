// Package server exposes the book service over HTTP.
//
// Responses carry the cache state next to the data:
//
//	{"state": "fresh", "data": [...], "fetched_at": "..."}
//
// fresh and stale answers are 200, pending is 202 with no data; clients are
// expected to poll. Errors are {"error": "...", "code": "NOT_FOUND"} with
// the status from [errs.HTTPStatus].
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/shelfcache/pkg/books"
	errs "github.com/matzehuels/shelfcache/pkg/errors"
	"github.com/matzehuels/shelfcache/pkg/observability"
	"github.com/matzehuels/shelfcache/pkg/tiered"
)

const shutdownTimeout = 10 * time.Second

// Service is the subset of *books.Service the handlers use.
type Service interface {
	TrendingBooks(ctx context.Context) (tiered.Result[[]books.Book], error)
	Author(ctx context.Context, name string) (tiered.Result[books.Author], error)
}

// Pinger checks a dependency for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a [Server].
type Options struct {
	Addr        string
	Logger      *log.Logger
	Metrics     *observability.Metrics // Nil disables /metrics
	Distributed Pinger                 // Nil reports the tier as disabled
}

// Server is the HTTP front end.
type Server struct {
	svc     Service
	opts    Options
	logger  *log.Logger
	handler http.Handler
}

// New builds the router.
func New(svc Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	s := &Server{svc: svc, opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	if opts.Metrics != nil {
		r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; version=0.0.4")
			opts.Metrics.WritePrometheus(w, true)
		})
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/books/trending", s.trending)
		r.Get("/authors/{name}", s.author)
	})
	s.handler = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.opts.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		s.logger.Warn("graceful shutdown failed", "err", err)
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) trending(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.TrendingBooks(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func (s *Server) author(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	res, err := s.svc.Author(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

type healthResponse struct {
	Status      string `json:"status"`
	Distributed string `json:"distributed"`
}

// health always answers 200: the distributed tier is optional, so its
// state is reported but never fails the check.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Distributed: "disabled"}
	if s.opts.Distributed != nil {
		resp.Distributed = "ok"
		if err := s.opts.Distributed.Ping(r.Context()); err != nil {
			resp.Distributed = "unavailable"
			s.logger.Warn("health check: distributed cache unavailable", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeResult[T any](w http.ResponseWriter, res tiered.Result[T]) {
	status := http.StatusOK
	if res.State == tiered.StatePending {
		status = http.StatusAccepted
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("X-Cache-State", string(res.State))
	writeJSON(w, status, res)
}

type errorResponse struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	code := errs.GetCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "code", code, "err", err, "request_id", middleware.GetReqID(r.Context()))
	}
	writeJSON(w, status, errorResponse{Error: errs.UserMessage(err), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
