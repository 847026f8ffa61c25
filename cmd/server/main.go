package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat2sql-go/internal/config"
	"chat2sql-go/internal/database"
	"chat2sql-go/internal/llm"
	"chat2sql-go/internal/metrics"
	"chat2sql-go/internal/orchestrator"
	"chat2sql-go/internal/pipeline"
	"chat2sql-go/internal/registry"
	"chat2sql-go/internal/report"
	"chat2sql-go/internal/schema"
	"chat2sql-go/internal/sqlexec"
	"chat2sql-go/internal/subgraph"
	"chat2sql-go/internal/validator"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("starting chat2sql pipeline server",
		zap.String("version", "0.1.0"),
		zap.String("go_version", runtime.Version()))

	if err := config.LoadEnv(".env"); err != nil {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	dbManager, err := database.NewManager(config.DefaultDatabaseConfig(), logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer dbManager.Close()

	pipelineCfg := config.LoadPipelineConfigFromEnv()
	if err := pipelineCfg.Validate(); err != nil {
		logger.Fatal("invalid pipeline configuration", zap.Error(err))
	}

	stageMetrics := metrics.New(metrics.DefaultConfig(), logger)

	o, reg, err := buildPipeline(dbManager, pipelineCfg, stageMetrics, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	logger.Info("registered subgraphs", zap.Strings("names", reg.List()))

	appInfo := config.DefaultAppInfo()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", healthzHandler(dbManager, appInfo))
	r.GET("/metrics", gin.WrapH(stageMetrics.Handler()))
	r.POST("/v1/query", queryHandler(o))

	runServer(r, logger)
}

// buildPipeline wires the schema introspector, SQL executor, SQL
// validator, the three subgraphs, the report generator and the
// registry into one Orchestrator, following the constructor-chain
// wiring shape of the teacher's main().
func buildPipeline(dbManager *database.Manager, cfg config.PipelineConfig, stageMetrics *metrics.StageMetrics, logger *zap.Logger) (*orchestrator.Orchestrator, *registry.Registry, error) {
	pool := dbManager.GetPool()

	baseLLMCfg := llm.LoadConfigFromEnv()
	transportCfg := llm.DefaultTransportConfig()

	splitClient, err := llm.New(baseLLMCfg, transportCfg, logger)
	if err != nil {
		return nil, nil, err
	}
	genClient, err := llm.New(baseLLMCfg, transportCfg, logger)
	if err != nil {
		return nil, nil, err
	}

	in := schema.New(pool, logger)
	exec := sqlexec.New(pool, logger)
	val := validator.New(validator.DefaultConfig())

	split := subgraph.NewSplitQuery(splitClient, cfg.RetryBudgetSplit, os.Getenv("PIPELINE_KNOWN_TABLES"), logger)

	genCfg := subgraph.DefaultConfig()
	genCfg.RetryBudget = cfg.RetryBudgetSQL
	gen := subgraph.NewGenerateSQL(genClient, in, val, genCfg, logger)

	fetch := subgraph.NewFetchData(exec, 200, logger)

	rep, err := report.New(baseLLMCfg, report.DefaultConfig(), transportCfg, logger)
	if err != nil {
		return nil, nil, err
	}

	reg := registry.New()
	reg.Register("split_query", registry.KindSplitQuery, split, genCfg)
	reg.Register("generate_sql", registry.KindGenerateSQL, gen, genCfg)
	reg.Register("fetch_data", registry.KindFetchData, fetch, nil)

	orchCfg := orchestrator.Config{ParallelPlanSteps: cfg.ParallelPlanSteps, Metrics: stageMetrics}
	if cfg.DeadlineS > 0 {
		orchCfg.Deadline = time.Duration(cfg.DeadlineS) * time.Second
	}
	o := orchestrator.New(split, gen, fetch, rep, orchCfg, logger)

	return o, reg, nil
}

// healthChecker is satisfied by *database.Manager; narrowed to an
// interface so healthzHandler can be exercised without a live database.
type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthzHandler reports the database's health alongside build/version
// information, following the teacher's health_service.go pattern of
// pairing a liveness check with AppInfo.
func healthzHandler(dbManager healthChecker, appInfo *config.AppInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := dbManager.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
				"app":    appInfo.GetBuildInfo(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "app": appInfo.GetBuildInfo()})
	}
}

type queryRequest struct {
	Query string `json:"query" binding:"required"`
}

// queryHandler exposes run_pipeline as the single external endpoint
// this binary carries; the full HTTP facade (auth, rate limiting,
// request logging, feedback storage) is out of scope per the system's
// external collaborators list and lives outside this module.
func queryHandler(o *orchestrator.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		state := o.Invoke(c.Request.Context(), req.Query)
		c.JSON(http.StatusOK, toResponse(state))
	}
}

func toResponse(state *pipeline.State) gin.H {
	return gin.H{
		"success":  state.Success(),
		"plan":     state.Plan,
		"sql":      state.SQL,
		"sql_error": state.SQLError,
		"md":       state.MD,
		"report":   state.Report,
		"history":  state.History,
	}
}

func runServer(r *gin.Engine, logger *zap.Logger) {
	srv := &http.Server{
		Addr:           ":8080",
		Handler:        r,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   120 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("chat2sql pipeline server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
}
