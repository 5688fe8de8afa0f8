// Package server exposes the report pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/KaramelBytes/finai-cli/internal/archive"
	"github.com/KaramelBytes/finai-cli/internal/dataset"
	"github.com/KaramelBytes/finai-cli/internal/report"
)

// Pipeline is the report generator behind the API.
type Pipeline interface {
	Generate(ctx context.Context, t *dataset.Table) (*report.Report, error)
	Ask(ctx context.Context, t *dataset.Table, query string) (string, error)
}

// PipelineFactory returns a pipeline for model; an empty model selects the
// configured default.
type PipelineFactory func(model string) (Pipeline, error)

// Options configures the HTTP layer.
type Options struct {
	MaxConcurrent int
	MaxUploadMB   int
	CORSOrigins   []string
	Dataset       dataset.Options
}

// Server routes API requests to the pipeline and the archive.
type Server struct {
	pipelines PipelineFactory
	store     *archive.Store
	sem       *semaphore.Weighted
	opt       Options
	log       *zap.Logger
	handler   http.Handler
}

// New builds the server and its routes.
func New(pipelines PipelineFactory, store *archive.Store, opt Options, log *zap.Logger) *Server {
	if opt.MaxConcurrent <= 0 {
		opt.MaxConcurrent = 1
	}
	if opt.MaxUploadMB <= 0 {
		opt.MaxUploadMB = 32
	}
	if len(opt.CORSOrigins) == 0 {
		opt.CORSOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		pipelines: pipelines,
		store:     store,
		sem:       semaphore.NewWeighted(int64(opt.MaxConcurrent)),
		opt:       opt,
		log:       log,
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/health", s.Health)
	api := r.Group("/api")
	api.POST("/reports", s.CreateReport)
	api.GET("/reports", s.ListReports)
	api.GET("/reports/:id", s.GetReport)
	api.GET("/reports/:id/meta", s.GetReportMeta)
	api.POST("/chat", s.Chat)
	r.POST("/chat", s.Chat)

	s.handler = cors.Handler(cors.Options{
		AllowedOrigins: opt.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	})(r)
	return s
}

// Handler returns the CORS-wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("http server listening", zap.String("addr", addr))
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Health reports liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// upload reads the multipart "file" field as a CSV table. On failure it has
// already written the response.
func (s *Server) upload(c *gin.Context) (*dataset.Table, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.opt.MaxUploadMB)<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("file exceeds %d MB", s.opt.MaxUploadMB)})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return nil, false
	}
	if !strings.EqualFold(filepath.Ext(fh.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv files are supported"})
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return nil, false
	}
	defer f.Close()
	t, err := dataset.ReadCSV(filepath.Base(fh.Filename), f, s.opt.Dataset)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid csv: " + err.Error()})
		return nil, false
	}
	if t.Rows == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv has no data rows"})
		return nil, false
	}
	return t, true
}

func (s *Server) pipeline(c *gin.Context) (Pipeline, bool) {
	p, err := s.pipelines(strings.TrimSpace(c.PostForm("model")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return p, true
}

// acquire waits for a pipeline slot.
func (s *Server) acquire(c *gin.Context) bool {
	if err := s.sem.Acquire(c.Request.Context(), 1); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "request cancelled while waiting for a free worker"})
		return false
	}
	return true
}

// CreateReport runs the pipeline on an uploaded CSV and archives the result.
func (s *Server) CreateReport(c *gin.Context) {
	t, ok := s.upload(c)
	if !ok {
		return
	}
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	if !s.acquire(c) {
		return
	}
	defer s.sem.Release(1)
	rep, err := p.Generate(c.Request.Context(), t)
	if err != nil {
		s.log.Error("report failed", zap.String("dataset", t.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error processing file: " + err.Error()})
		return
	}
	meta := rep.Meta
	if s.store != nil {
		meta, err = s.store.Save(meta, rep.HTML)
		if err != nil {
			s.log.Error("archive report", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "error processing file: " + err.Error()})
			return
		}
	}
	if c.Query("format") == "html" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(rep.HTML))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": meta.ID, "html": rep.HTML, "meta": meta})
}

// ListReports returns archived report metadata, newest first.
func (s *Server) ListReports(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"reports": []report.Metadata{}})
		return
	}
	list, err := s.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []report.Metadata{}
	}
	c.JSON(http.StatusOK, gin.H{"reports": list})
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, archive.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// GetReport serves an archived report as HTML.
func (s *Server) GetReport(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": archive.ErrNotFound.Error()})
		return
	}
	_, html, err := s.store.Load(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

// GetReportMeta serves an archived report's metadata.
func (s *Server) GetReportMeta(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": archive.ErrNotFound.Error()})
		return
	}
	meta, err := s.store.Meta(c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, meta)
}

// Chat answers a free-form question about an uploaded CSV.
func (s *Server) Chat(c *gin.Context) {
	t, ok := s.upload(c)
	if !ok {
		return
	}
	query := strings.TrimSpace(c.PostForm("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	p, ok := s.pipeline(c)
	if !ok {
		return
	}
	if !s.acquire(c) {
		return
	}
	defer s.sem.Release(1)
	answer, err := p.Ask(c.Request.Context(), t, query)
	if err != nil {
		s.log.Error("chat failed", zap.String("dataset", t.Name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "error processing file: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": answer})
}
