// Package api exposes the analysis pipeline over a JSON HTTP interface.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sleepanalysis/adapters/excel"
	"sleepanalysis/adapters/postgres"
	"sleepanalysis/domain/core"
	"sleepanalysis/domain/sleep"
	"sleepanalysis/internal"
	"sleepanalysis/internal/analysis"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/errors"
	"sleepanalysis/internal/optimize"
	"sleepanalysis/internal/report"
)

const version = "1.0.0"

// Server wires the analysis services behind a gin router.
type Server struct {
	router       *gin.Engine
	estimator    *causal.Estimator
	service      *analysis.Service
	optimizerCfg optimize.Config
	archive      *postgres.Archive
	workbook     string
	log          *internal.Logger
}

// NewServer builds the router and registers all routes. The archive may be
// nil, which disables run persistence.
func NewServer(causalCfg causal.Config, optimizerCfg optimize.Config, archive *postgres.Archive) *Server {
	s := &Server{
		router:       gin.Default(),
		estimator:    causal.NewEstimator(causalCfg),
		service:      analysis.NewService(causalCfg, optimizerCfg),
		optimizerCfg: optimizerCfg,
		archive:      archive,
		log:          internal.DefaultLogger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/analyze/causal", s.handleCausal)
	s.router.POST("/analyze/comprehensive", s.handleComprehensive)
	s.router.POST("/optimize", s.handleOptimize)
	s.router.POST("/optimize/pareto", s.handlePareto)
	s.router.POST("/simulate", s.handleSimulate)
	s.router.POST("/import/excel", s.handleImport)
	s.router.POST("/report", s.handleReport)
	s.router.GET("/report", s.handleReportFromWorkbook)
	s.router.GET("/runs", s.handleRecentRuns)
}

// SetDefaultWorkbook points GET /report at a workbook to import when no
// history is posted.
func (s *Server) SetDefaultWorkbook(path string) {
	s.workbook = path
}

// Start runs the server until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("listening on %s", addr)
	return s.router.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleCausal(c *gin.Context) {
	var req AnalysisRequest
	if !s.bindHistory(c, &req) {
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	estimates := s.estimator.AnalyzeAll(c.Request.Context(), history, toMetricKeys(req.TargetMetrics))
	if estimates == nil {
		estimates = []causal.Estimate{}
	}
	c.JSON(http.StatusOK, gin.H{"causal_results": estimates})
}

func (s *Server) handleComprehensive(c *gin.Context) {
	var req AnalysisRequest
	if !s.bindHistory(c, &req) {
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	result := s.service.Run(c.Request.Context(), history, toMetricKeys(req.TargetMetrics))
	s.archiveRun(c, result)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleOptimize(c *gin.Context) {
	var req OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	if req.TargetMetric == "" {
		s.clientError(c, errors.InvalidInput("target_metric is required"))
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	state := optimize.Train(c.Request.Context(), history, s.optimizerCfg)
	c.JSON(http.StatusOK, optimize.OptimizeSingle(state, core.MetricKey(req.TargetMetric), s.optimizerCfg))
}

func (s *Server) handlePareto(c *gin.Context) {
	var req ParetoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	objectives := toMetricKeys(req.Objectives)
	if len(objectives) == 0 {
		objectives = sleep.DefaultObjectives
	}
	state := optimize.Train(c.Request.Context(), history, s.optimizerCfg)
	c.JSON(http.StatusOK, optimize.OptimizeParetoFrontier(state, objectives, s.optimizerCfg))
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.clientError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	if len(req.Medications) == 0 {
		s.clientError(c, errors.InvalidInput("medications is required"))
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	state := optimize.Train(c.Request.Context(), history, s.optimizerCfg)
	c.JSON(http.StatusOK, optimize.Simulate(state, toDoseMap(req.Medications)))
}

func (s *Server) handleImport(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		s.clientError(c, errors.InvalidInput("path is required"))
		return
	}

	history, err := excel.NewReader(req.Path).Read()
	if err != nil {
		s.clientError(c, err)
		return
	}

	points := make([]AlignedDataPointDTO, 0, len(history))
	for _, p := range history {
		points = append(points, fromDomainPoint(p))
	}
	c.JSON(http.StatusOK, gin.H{
		"nights":       len(history),
		"aligned_data": points,
	})
}

func (s *Server) handleReport(c *gin.Context) {
	var req AnalysisRequest
	if !s.bindHistory(c, &req) {
		return
	}
	history, ok := s.convertHistory(c, req.AlignedData)
	if !ok {
		return
	}

	result := s.service.Run(c.Request.Context(), history, toMetricKeys(req.TargetMetrics))
	s.archiveRun(c, result)
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(result))
}

func (s *Server) handleReportFromWorkbook(c *gin.Context) {
	if s.workbook == "" {
		s.clientError(c, errors.InvalidInput("no default workbook configured; POST a history to /report instead"))
		return
	}

	history, err := excel.NewReader(s.workbook).Read()
	if err != nil {
		s.clientError(c, err)
		return
	}

	result := s.service.Run(c.Request.Context(), history, nil)
	s.archiveRun(c, result)
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.HTML(result))
}

func (s *Server) handleRecentRuns(c *gin.Context) {
	if !s.archive.Enabled() {
		c.JSON(http.StatusOK, gin.H{"runs": []postgres.RunSummary{}})
		return
	}
	runs, err := s.archive.RecentRuns(c.Request.Context(), 20)
	if err != nil {
		s.log.Error("listing runs failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []postgres.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// bindHistory binds an AnalysisRequest, rejecting malformed JSON.
func (s *Server) bindHistory(c *gin.Context, req *AnalysisRequest) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		s.clientError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return false
	}
	return true
}

// convertHistory maps wire data points into domain form, rejecting invalid
// input with a 400.
func (s *Server) convertHistory(c *gin.Context, points []AlignedDataPointDTO) ([]sleep.AlignedDataPoint, bool) {
	history, err := toHistory(points)
	if err != nil {
		s.clientError(c, err)
		return nil, false
	}
	return history, true
}

// archiveRun persists a comprehensive result when the archive is enabled.
// Archive failures are logged, never surfaced: persistence is best-effort.
func (s *Server) archiveRun(c *gin.Context, result analysis.ComprehensiveResult) {
	if !s.archive.Enabled() {
		return
	}
	run := postgres.RunSummary{
		ID:        result.RunID,
		CreatedAt: time.Now().UTC(),
		Nights:    result.Nights,
		Summary:   result.Summary,
	}
	if err := s.archive.SaveRun(c.Request.Context(), run, result.CausalResults); err != nil {
		s.log.Warn("archiving run %s failed: %v", result.RunID, err)
	}
}

// clientError maps adapter and validation faults onto HTTP statuses.
func (s *Server) clientError(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch errors.GetCode(err) {
	case errors.CodeInternalError, errors.CodeDatabaseError:
		status = http.StatusInternalServerError
	}
	s.log.Warn("request rejected: %v", err)
	c.JSON(status, gin.H{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}
