// Package chi exposes the gateway HTTP API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/chronodex"
	"github.com/kailas-cloud/chronodex/internal/db"
	"github.com/kailas-cloud/chronodex/internal/ingest"
	"github.com/kailas-cloud/chronodex/internal/logger"
)

// SpecRegistry is the datasource schema store the API fronts.
type SpecRegistry interface {
	Create(ctx context.Context, ds chronodex.DataSource) error
	Get(ctx context.Context, name string) (chronodex.DataSource, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// Ingester accepts event batches for a datasource.
type Ingester interface {
	Ingest(ctx context.Context, dataSource string, events []map[string]any) (ingest.Result, error)
	Invalidate(ctx context.Context, dataSource string)
}

// Server implements the gateway HTTP API.
type Server struct {
	registry SpecRegistry
	ingester Ingester
	pinger   db.Pinger
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(registry SpecRegistry, ingester Ingester, pinger db.Pinger, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		ingester: ingester,
		pinger:   pinger,
		logger:   logger,
	}
}

// RequestLogger is a middleware that stores a request-scoped logger in the
// context, tagged with the request id when chi's RequestID middleware ran
// first. Handlers retrieve it with logger.FromContext.
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := s.logger
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			l = l.With(zap.String("request_id", reqID))
		}
		next.ServeHTTP(w, r.WithContext(logger.NewContext(r.Context(), l)))
	})
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/datasources", func(r chi.Router) {
		r.Post("/", s.createDataSource)
		r.Get("/", s.listDataSources)
		r.Get("/{name}", s.getDataSource)
		r.Delete("/{name}", s.deleteDataSource)
		r.Post("/{name}/events", s.ingestEvents)
	})
}

func (s *Server) createDataSource(w http.ResponseWriter, r *http.Request) {
	var ds chronodex.DataSource
	if err := json.NewDecoder(r.Body).Decode(&ds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid datasource spec: "+err.Error())
		return
	}

	if err := s.registry.Create(r.Context(), ds); err != nil {
		s.handleError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("datasource created",
		zap.String("datasource", ds.Name()),
		zap.String("granularity", string(ds.Rollup().Granularity())),
		zap.Bool("rollup", ds.Rollup().IsRollup()),
	)
	writeJSON(w, http.StatusCreated, ds)
}

func (s *Server) listDataSources(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.List(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dataSources": names})
}

func (s *Server) getDataSource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.registry.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) deleteDataSource(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.registry.Delete(r.Context(), name); err != nil {
		s.handleError(w, r, err)
		return
	}
	s.ingester.Invalidate(r.Context(), name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var events []map[string]any
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event batch: "+err.Error())
		return
	}

	res, err := s.ingester.Ingest(r.Context(), chi.URLParam(r, "name"), events)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chronodex.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, chronodex.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chronodex.ErrSchemaConflict), errors.Is(err, chronodex.ErrInvalidSpec):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.FromContext(r.Context()).Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
