// Package http provides the HTTP API for docqa.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqa/internal/feedback"
	"github.com/fyrsmithlabs/docqa/internal/index"
	"github.com/fyrsmithlabs/docqa/internal/ingest"
	"github.com/fyrsmithlabs/docqa/internal/monitor"
	"github.com/fyrsmithlabs/docqa/internal/service"
)

// Server provides HTTP endpoints for docqa.
type Server struct {
	echo      *echo.Echo
	service   *service.Service
	ingestor  *ingest.Ingestor
	manager   *index.Manager
	collector *monitor.Collector
	feedback  *feedback.Store
	logger    *zap.Logger
	config    *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server. collector and fb may be nil;
// their endpoints then answer 404.
func NewServer(svc *service.Service, ingestor *ingest.Ingestor, manager *index.Manager, collector *monitor.Collector, fb *feedback.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if ingestor == nil {
		return nil, fmt.Errorf("ingestor cannot be nil")
	}
	if manager == nil {
		return nil, fmt.Errorf("index manager cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8088,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
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
		echo:      e,
		service:   svc,
		ingestor:  ingestor,
		manager:   manager,
		collector: collector,
		feedback:  fb,
		logger:    logger,
		config:    cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUploadDocument)
	v1.GET("/documents", s.handleListDocuments)
	v1.DELETE("/documents/:id", s.handleDeleteDocument)
	v1.POST("/query", s.handleQuery)
	v1.POST("/evaluate", s.handleEvaluate)
	v1.GET("/monitoring/recent", s.handleMonitoringRecent)
	v1.GET("/monitoring/alerts", s.handleMonitoringAlerts)
	v1.POST("/feedback", s.handleFeedback)
	v1.GET("/feedback/summary", s.handleFeedbackSummary)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
}

// QueryRequest is the request body for POST /api/v1/query.
// DocumentIDs, when set, restricts retrieval to those documents.
type QueryRequest struct {
	Query       string   `json:"query"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// FeedbackRequest is the request body for POST /api/v1/feedback. The
// retrieval fields echo what the query response reported so ratings can
// be grouped by the parameters that produced them.
type FeedbackRequest struct {
	Query           string  `json:"query"`
	Answer          string  `json:"answer"`
	Rating          string  `json:"rating"`
	Comment         string  `json:"comment"`
	SessionID       string  `json:"session_id"`
	RetrievalMethod string  `json:"retrieval_method"`
	RetrievalK      int     `json:"retrieval_k"`
	QualityScore    float64 `json:"quality_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	ResponseTime    float64 `json:"response_time_seconds"`
}

// EvaluateRequest is the request body for POST /api/v1/evaluate.
type EvaluateRequest struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Context []string `json:"context"`
}

func (s *Server) handleHealth(c echo.Context) error {
	snap := s.manager.Snapshot()
	return c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Documents: len(snap.Documents()),
		Chunks:    snap.ChunkCount(),
	})
}

// handleUploadDocument ingests an uploaded PDF. The file is spooled to
// a temp path because the extractor works on files, not streams.
func (s *Server) handleUploadDocument(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file field is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "could not read uploaded file")
	}
	defer src.Close()

	tmpDir, err := os.MkdirTemp("", "docqa-upload-*")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not spool upload")
	}
	defer os.RemoveAll(tmpDir)

	tmpPath := filepath.Join(tmpDir, filepath.Base(fileHeader.Filename))
	dst, err := os.Create(tmpPath)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "could not spool upload")
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return echo.NewHTTPError(http.StatusInternalServerError, "could not spool upload")
	}
	dst.Close()

	meta, err := s.ingestor.IngestFile(c.Request().Context(), tmpPath)
	if err != nil {
		s.logger.Warn("document ingestion failed",
			zap.String("filename", fileHeader.Filename),
			zap.Error(err),
		)
		if errors.Is(err, ingest.ErrNoText) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "no extractable text in document")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "ingestion failed")
	}

	return c.JSON(http.StatusCreated, meta)
}

func (s *Server) handleListDocuments(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.Snapshot().Documents())
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	docID := c.Param("id")
	if err := s.manager.DeleteDocument(c.Request().Context(), docID); err != nil {
		if errors.Is(err, index.ErrDocumentNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "document not found")
		}
		s.logger.Error("document deletion failed",
			zap.String("doc_id", docID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "deletion failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query field is required")
	}

	result, err := s.service.Retrieve(c.Request().Context(), req.Query, req.DocumentIDs)
	if err != nil {
		s.logger.Error("query failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "retrieval failed")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleEvaluate(c echo.Context) error {
	var req EvaluateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" || req.Answer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query and answer fields are required")
	}

	metrics := s.service.Evaluate(c.Request().Context(), req.Query, req.Answer, req.Context)
	return c.JSON(http.StatusOK, metrics)
}

func (s *Server) handleMonitoringRecent(c echo.Context) error {
	if s.collector == nil {
		return echo.NewHTTPError(http.StatusNotFound, "monitoring is disabled")
	}
	n := 50
	if raw := c.QueryParam("n"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &n); err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "n must be a positive integer")
		}
	}
	return c.JSON(http.StatusOK, s.collector.Recent(n))
}

func (s *Server) handleMonitoringAlerts(c echo.Context) error {
	if s.collector == nil {
		return echo.NewHTTPError(http.StatusNotFound, "monitoring is disabled")
	}
	alerts := s.collector.Alerts()
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	return c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleFeedback(c echo.Context) error {
	if s.feedback == nil {
		return echo.NewHTTPError(http.StatusNotFound, "feedback collection is disabled")
	}
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" || req.Rating == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query and rating fields are required")
	}

	entry, err := s.feedback.Record(feedback.Entry{
		Query:           req.Query,
		Answer:          req.Answer,
		Rating:          req.Rating,
		Comment:         req.Comment,
		SessionID:       req.SessionID,
		RetrievalMethod: req.RetrievalMethod,
		RetrievalK:      req.RetrievalK,
		QualityScore:    req.QualityScore,
		ConfidenceScore: req.ConfidenceScore,
		ResponseTime:    req.ResponseTime,
	})
	if err != nil {
		if errors.Is(err, feedback.ErrInvalidRating) {
			return echo.NewHTTPError(http.StatusBadRequest, "rating must be positive or negative")
		}
		s.logger.Error("feedback recording failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not record feedback")
	}
	return c.JSON(http.StatusCreated, entry)
}

func (s *Server) handleFeedbackSummary(c echo.Context) error {
	if s.feedback == nil {
		return echo.NewHTTPError(http.StatusNotFound, "feedback collection is disabled")
	}
	hours := 24
	if raw := c.QueryParam("hours"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &hours); err != nil || hours < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "hours must be a positive integer")
		}
	}
	return c.JSON(http.StatusOK, s.feedback.Summarize(time.Duration(hours)*time.Hour))
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
