package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mohammad-safakhou/accountplan/internal/agent/core"
	"github.com/mohammad-safakhou/accountplan/internal/store"
)

// Engine is the orchestrator surface the HTTP layer needs. Tests swap
// in a stub.
type Engine interface {
	Ask(ctx context.Context, company, query, directive string) (core.AskResult, error)
	BuildReport(ctx context.Context, company, directive string) (core.Report, error)
	Rebuild(company string)
}

// RunHistory is the optional report-run persistence surface.
type RunHistory interface {
	Save(ctx context.Context, company, directive string, report json.RawMessage, lowConfidence bool) (string, error)
	List(ctx context.Context, company string, limit int) ([]store.ReportRun, error)
}

// Server exposes the research engine over HTTP.
type Server struct {
	engine  Engine
	history RunHistory
	metrics http.Handler
	logger  *log.Logger
	echo    *echo.Echo
}

func New(engine Engine, history RunHistory, metrics http.Handler) *Server {
	s := &Server{
		engine:  engine,
		history: history,
		metrics: metrics,
		logger:  log.New(log.Writer(), "[SERVER] ", log.LstdFlags),
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.healthz)
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
	api := e.Group("/api")
	api.POST("/ask", s.ask)
	api.POST("/report", s.report)
	api.POST("/rebuild", s.rebuild)
	api.GET("/runs", s.runs)

	s.echo = e
	return s
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start(addr string) error { return s.echo.Start(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

// Handler exposes the underlying mux for tests.
func (s *Server) Handler() http.Handler { return s.echo }

type askRequest struct {
	Company   string `json:"company"`
	Query     string `json:"query"`
	Directive string `json:"directive"`
}

func (s *Server) ask(c echo.Context) error {
	var req askRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Company == "" || req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company and query are required")
	}
	res, err := s.engine.Ask(c.Request().Context(), req.Company, req.Query, req.Directive)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type reportRequest struct {
	Company   string `json:"company"`
	Directive string `json:"directive"`
}

func (s *Server) report(c echo.Context) error {
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Company == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company is required")
	}
	rep, err := s.engine.BuildReport(c.Request().Context(), req.Company, req.Directive)
	if err != nil {
		return s.mapError(err)
	}
	if s.history != nil {
		raw, err := json.Marshal(rep)
		if err == nil {
			if _, err := s.history.Save(c.Request().Context(), req.Company, req.Directive, raw, rep.LowConfidence); err != nil {
				// History is best effort; the report still goes out.
				s.logger.Printf("save report run: %v", err)
			}
		}
	}
	return c.JSON(http.StatusOK, rep)
}

type rebuildRequest struct {
	Company string `json:"company"`
}

func (s *Server) rebuild(c echo.Context) error {
	var req rebuildRequest
	if err := c.Bind(&req); err != nil || req.Company == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "company is required")
	}
	s.engine.Rebuild(req.Company)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) runs(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusNotFound, "run history is not configured")
	}
	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	runs, err := s.history.List(c.Request().Context(), c.QueryParam("company"), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) mapError(err error) error {
	switch {
	case errors.Is(err, core.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "llm backend unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "research timebox exceeded")
	default:
		s.logger.Printf("request failed: %v", err)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
