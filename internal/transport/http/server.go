// Package backtesthttp exposes the backtest service, candle cache and
// result store over a small JSON API.
package backtesthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kairos/internal/backtest"
	"kairos/internal/gateway/fetch"
	"kairos/internal/market"
	"kairos/internal/profile"
	"kairos/internal/report"
	"kairos/internal/store/candle"
	"kairos/internal/store/results"
)

type Server struct {
	addr      string
	svc       *backtest.Service
	fetcher   *fetch.Service
	cache     *candle.Cache
	results   *results.Store
	profiles  *profile.Registry
	reportDir string
	router    *gin.Engine
}

type Config struct {
	Addr      string
	Svc       *backtest.Service
	Fetcher   *fetch.Service
	Cache     *candle.Cache
	Results   *results.Store
	Profiles  *profile.Registry
	ReportDir string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Svc == nil {
		return nil, errors.New("backtest service is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9985"
	}
	if cfg.ReportDir == "" {
		cfg.ReportDir = "data/reports"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:      cfg.Addr,
		svc:       cfg.Svc,
		fetcher:   cfg.Fetcher,
		cache:     cfg.Cache,
		results:   cfg.Results,
		profiles:  cfg.Profiles,
		reportDir: cfg.ReportDir,
		router:    router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/fetch", s.handleFetch)
	api.GET("/candles", s.handleCandles)
	api.GET("/data", s.handleManifest)
	api.POST("/runs", s.handleRunStart)
	api.POST("/runs/batch", s.handleRunBatch)
	api.GET("/runs", s.handleRunList)
	api.GET("/runs/:id", s.handleRunDetail)
	api.GET("/runs/:id/trades", s.handleRunTrades)
	api.GET("/runs/:id/equity", s.handleRunEquity)
	api.GET("/runs/:id/calls", s.handleRunCalls)
	api.GET("/runs/:id/chart", s.handleRunChart)
	api.GET("/runs/:id/snapshot", s.handleRunSnapshot)
	api.GET("/profiles", s.handleProfiles)
	api.GET("/profiles/export", s.handleProfilesExport)
	api.GET("/timeframes", s.handleTimeframes)
}

func (s *Server) handleFetch(c *gin.Context) {
	if s.fetcher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fetch service not enabled"})
		return
	}
	var req struct {
		Exchange  string `json:"exchange"`
		Symbol    string `json:"symbol" binding:"required"`
		Timeframe string `json:"timeframe" binding:"required"`
		StartTS   int64  `json:"start_ts" binding:"required"`
		EndTS     int64  `json:"end_ts" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.fetcher.Sync(c.Request.Context(), req.Exchange, req.Symbol, req.Timeframe, req.StartTS, req.EndTS)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sync": res})
}

func (s *Server) handleCandles(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle cache not enabled"})
		return
	}
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe are required"})
		return
	}
	start, _ := strconv.ParseInt(c.Query("start_ts"), 10, 64)
	end, _ := strconv.ParseInt(c.Query("end_ts"), 10, 64)
	data, err := s.cache.Range(c.Request.Context(), symbol, tf, start, end)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": data})
}

func (s *Server) handleManifest(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle cache not enabled"})
		return
	}
	symbol := c.Query("symbol")
	tf := c.Query("timeframe")
	if symbol == "" || tf == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol/timeframe are required"})
		return
	}
	info, err := s.cache.Manifest(c.Request.Context(), symbol, tf)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"manifest": info})
}

// startRunRequest optionally names a profile whose settings pre-fill the
// run before explicit fields override them.
type startRunRequest struct {
	Profile string `json:"profile"`
	backtest.RunRequest
}

func (s *Server) handleRunStart(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runReq, err := s.applyProfile(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := s.svc.StartRun(c.Request.Context(), runReq)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run})
}

func (s *Server) handleRunBatch(c *gin.Context) {
	// the template cannot embed RunRequest: its required Symbol binding
	// would reject every batch payload
	var req struct {
		Symbols             []string `json:"symbols" binding:"required"`
		Timeframe           string   `json:"timeframe"`
		Exchange            string   `json:"exchange"`
		Source              string   `json:"source"`
		StartTS             int64    `json:"start_ts" binding:"required"`
		EndTS               int64    `json:"end_ts" binding:"required"`
		InitialCapital      float64  `json:"initial_capital"`
		ConfidenceThreshold float64  `json:"confidence_threshold"`
		RiskFraction        float64  `json:"risk_fraction"`
		EvalStep            string   `json:"eval_step"`
		CloseAtEnd          bool     `json:"close_at_end"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	template := backtest.RunRequest{
		Timeframe:           req.Timeframe,
		Exchange:            req.Exchange,
		Source:              req.Source,
		StartTS:             req.StartTS,
		EndTS:               req.EndTS,
		InitialCapital:      req.InitialCapital,
		ConfidenceThreshold: req.ConfidenceThreshold,
		RiskFraction:        req.RiskFraction,
		EvalStep:            req.EvalStep,
		CloseAtEnd:          req.CloseAtEnd,
	}
	reports, err := s.svc.RunBatch(c.Request.Context(), req.Symbols, template)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "reports": reports})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (s *Server) handleRunList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"runs": s.svc.ListRuns()})
}

func (s *Server) handleRunDetail(c *gin.Context) {
	id := c.Param("id")
	if run, ok := s.svc.GetRun(id); ok {
		c.JSON(http.StatusOK, gin.H{"run": run})
		return
	}
	if s.results != nil {
		if m, err := s.results.GetRun(c.Request.Context(), id); err == nil {
			c.JSON(http.StatusOK, gin.H{"run": m})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
}

func (s *Server) handleRunTrades(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not enabled"})
		return
	}
	trades, err := s.results.TradesForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

func (s *Server) handleRunEquity(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not enabled"})
		return
	}
	equity, err := s.results.EquityForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"equity": equity})
}

// handleRunCalls returns the raw model exchanges recorded for an
// AI-sourced run; technical runs have none.
func (s *Server) handleRunCalls(c *gin.Context) {
	if s.results == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "result store not enabled"})
		return
	}
	calls, err := s.results.CallsForRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (s *Server) handleRunChart(c *gin.Context) {
	rep, candles, ok := s.loadRunChartData(c)
	if !ok {
		return
	}
	html, err := report.BuildHTML(rep, candles)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

func (s *Server) handleRunSnapshot(c *gin.Context) {
	rep, candles, ok := s.loadRunChartData(c)
	if !ok {
		return
	}
	dir := c.DefaultQuery("dir", s.reportDir)
	path, err := report.WritePNG(c.Request.Context(), rep, candles, dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.File(path)
}

func (s *Server) loadRunChartData(c *gin.Context) (*backtest.Report, []market.Candle, bool) {
	run, ok := s.svc.GetRun(c.Param("id"))
	if !ok || run.Report == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found or not finished"})
		return nil, nil, false
	}
	if s.cache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "candle cache not enabled"})
		return nil, nil, false
	}
	candles, err := s.cache.Range(c.Request.Context(), run.Symbol, run.Timeframe, run.StartTS, run.EndTS)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return run.Report, candles, true
}

func (s *Server) handleProfiles(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profiles not enabled"})
		return
	}
	snap := s.profiles.Snapshot()
	c.JSON(http.StatusOK, gin.H{"version": snap.Version, "profiles": snap.Profiles})
}

func (s *Server) handleProfilesExport(c *gin.Context) {
	if s.profiles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "profiles not enabled"})
		return
	}
	out, err := s.profiles.ExportYAML()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/yaml", out)
}

func (s *Server) handleTimeframes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"timeframes": backtest.SupportedTimeframes()})
}

// applyProfile fills request gaps from the named (or resolved) profile.
func (s *Server) applyProfile(req startRunRequest) (backtest.RunRequest, error) {
	out := req.RunRequest
	if req.Profile == "" || s.profiles == nil {
		return out, nil
	}
	def, ok := s.profiles.Get(req.Profile)
	if !ok {
		return out, errors.New("unknown profile " + req.Profile)
	}
	if out.Timeframe == "" {
		out.Timeframe = def.Timeframe
	}
	if out.Exchange == "" {
		out.Exchange = def.Exchange
	}
	if out.Source == "" {
		out.Source = def.Source
	}
	if out.InitialCapital == 0 {
		out.InitialCapital = def.InitialCapital
	}
	if out.ConfidenceThreshold == 0 {
		out.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if out.RiskFraction == 0 {
		out.RiskFraction = def.RiskFraction
	}
	if out.EvalStep == "" {
		out.EvalStep = def.EvalStep
	}
	if !out.CloseAtEnd {
		out.CloseAtEnd = def.CloseAtEnd
	}
	return out, nil
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
