// Package server provides the HTTP API for outreachd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/signalworks/outreachd/internal/decision"
	"github.com/signalworks/outreachd/internal/dispatch"
	"github.com/signalworks/outreachd/internal/store"
)

// Composer turns an entity's log lines into a validated decision.
type Composer interface {
	Compose(ctx context.Context, entity string, lines []string) (decision.Decision, error)
}

// Dispatcher runs one dispatch pass over PENDING records.
type Dispatcher interface {
	Run(ctx context.Context) (dispatch.Report, error)
}

// Store is the subset of the lifecycle store the API needs.
type Store interface {
	Create(ctx context.Context, d decision.Decision, entityID, leadEmail string) (store.Record, error)
	List(ctx context.Context, status store.Status) ([]store.Record, error)
	RawLogLines(ctx context.Context, entityID string) ([]string, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server exposes decision composition, record inspection, and dispatch
// over HTTP.
type Server struct {
	echo       *echo.Echo
	composer   Composer
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger
	config     *Config
}

// NewServer creates the HTTP server. The registry backs GET /metrics;
// nil falls back to the default registerer's gatherer.
func NewServer(composer Composer, st Store, dispatcher Dispatcher, reg *prometheus.Registry, logger *zap.Logger, cfg *Config) (*Server, error) {
	if composer == nil {
		return nil, fmt.Errorf("composer cannot be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		composer:   composer,
		store:      st,
		dispatcher: dispatcher,
		logger:     logger,
		config:     cfg,
	}

	s.registerRoutes(reg)

	return s, nil
}

func (s *Server) registerRoutes(reg *prometheus.Registry) {
	s.echo.GET("/health", s.handleHealth)

	metricsHandler := promhttp.Handler()
	if reg != nil {
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	s.echo.GET("/metrics", echo.WrapHandler(metricsHandler))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/decisions", s.handleDecisions)
	v1.GET("/records", s.handleRecords)
	v1.POST("/dispatch", s.handleDispatch)
}

// DecisionRequest is the request body for POST /api/v1/decisions.
// When Logs is empty the entity's stored raw log lines are used.
type DecisionRequest struct {
	EntityID  string   `json:"entity_id"`
	LeadEmail string   `json:"lead_email"`
	Logs      []string `json:"logs,omitempty"`
	Save      bool     `json:"save,omitempty"`
}

// DecisionResponse is the response body for POST /api/v1/decisions.
// RecordID is set only when the decision was persisted.
type DecisionResponse struct {
	RecordID string            `json:"record_id,omitempty"`
	Decision decision.Decision `json:"decision"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleDecisions(c echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid decision request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.EntityID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "entity_id field is required")
	}
	if req.Save && req.LeadEmail == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "lead_email is required to save a record")
	}

	ctx := c.Request().Context()
	lines := req.Logs
	if len(lines) == 0 {
		var err error
		lines, err = s.store.RawLogLines(ctx, req.EntityID)
		if err != nil {
			s.logger.Error("failed to read raw logs", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to read raw logs")
		}
	}

	d, err := s.composer.Compose(ctx, req.EntityID, lines)
	if err != nil {
		var compErr *decision.CompositionError
		if errors.As(err, &compErr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, compErr.Error())
		}
		s.logger.Error("decision composition failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "decision composition failed")
	}

	resp := DecisionResponse{Decision: d}
	if req.Save {
		record, err := s.store.Create(ctx, d, req.EntityID, req.LeadEmail)
		if err != nil {
			s.logger.Error("failed to persist record", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to persist record")
		}
		resp.RecordID = record.ID
		return c.JSON(http.StatusCreated, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecords(c echo.Context) error {
	status := store.Status(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}

	records, err := s.store.List(c.Request().Context(), status)
	if err != nil {
		s.logger.Error("failed to list records", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list records")
	}
	if records == nil {
		records = []store.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) handleDispatch(c echo.Context) error {
	if s.dispatcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "dispatcher is not configured")
	}

	report, err := s.dispatcher.Run(c.Request().Context())
	if err != nil {
		s.logger.Error("dispatch run failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "dispatch run failed")
	}
	return c.JSON(http.StatusOK, report)
}

// Echo exposes the underlying router, mostly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
