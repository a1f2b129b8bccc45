package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/aquaregiaswarm-blip/scout/config"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/core"
	"github.com/aquaregiaswarm-blip/scout/internal/agent/telemetry"
	"github.com/aquaregiaswarm-blip/scout/internal/index"
	"github.com/aquaregiaswarm-blip/scout/internal/runtime"
	"github.com/aquaregiaswarm-blip/scout/internal/store"
	"github.com/aquaregiaswarm-blip/scout/internal/stream"
	"github.com/aquaregiaswarm-blip/scout/internal/tools"
)

// Run wires the full service and blocks serving HTTP on addr.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, HTTPError{Error: msg})
		}
	}
	origins := cfg.Server.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "Cookie"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	tele, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() { _ = tele.Shutdown(context.Background()) }()

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		baseLogger.Printf("migrate: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}

	secret, err := runtime.LoadJWTSecret(cfg)
	if err != nil {
		return err
	}

	// Progress broker: Redis fan-out when configured, else a single-process hub.
	var broker stream.Broker
	var rdb *redis.Client
	streamLogger := log.New(log.Writer(), "[STREAM] ", log.LstdFlags)
	if cfg.Storage.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.Redis.Addr,
			Password: cfg.Storage.Redis.Password,
			DB:       cfg.Storage.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr, err)
		}
		broker = stream.NewRedisBroker(rdb, streamLogger)
	} else {
		broker = stream.NewHub(streamLogger)
	}

	idx, err := index.Open("")
	if err != nil {
		return err
	}

	orch, err := buildOrchestrator(cfg, st, broker, idx)
	if err != nil {
		return err
	}

	api := e.Group("/api")
	ah := &AuthHandler{Store: st, Secret: secret}
	ah.Register(api.Group("/auth"))

	ch := &CompaniesHandler{Store: st}
	ch.Register(api.Group("/companies"), secret)

	ph := &PortfolioHandler{Store: st}
	ph.Register(api.Group("/portfolio"), secret)

	rh := NewResearchHandler(cfg, st, orch, broker, idx)
	rh.Register(api.Group("/initiatives"), secret)

	sched := &Scheduler{
		Store:       st,
		Orch:        orch,
		Rdb:         rdb,
		Stop:        make(chan struct{}),
		Logger:      log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
		RefreshCron: cfg.Scheduler.RefreshCron,
		StaleAfter:  cfg.Scheduler.StaleAfter,
	}
	sched.Start()

	if addr == "" {
		addr = cfg.Server.Address
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}

// buildOrchestrator assembles the planner/researcher/synthesizer pipeline
// from config. Shared by the HTTP trigger and the scheduler.
func buildOrchestrator(cfg *config.Config, st *store.Store, broker stream.Broker, idx *index.FindingIndex) (*core.Orchestrator, error) {
	if cfg.LLM.Provider.APIKey == "" {
		return nil, fmt.Errorf("llm provider api key not configured (llm.provider.api_key or SCOUT_LLM_PROVIDER_API_KEY)")
	}
	provider := core.NewAnthropicProvider(cfg.LLM.Provider)
	gateway := core.NewGateway(provider, log.New(log.Writer(), "[GATEWAY] ", log.LstdFlags))
	registry := tools.NewDefaultRegistry(cfg.Tools, cfg.Agents.ToolTimeout, log.New(log.Writer(), "[TOOLS] ", log.LstdFlags))

	planner := core.NewPlanner(gateway, cfg.LLM.Routing.Planning, cfg.Agents.MaxPathsPerCycle, log.New(log.Writer(), "[PLANNER] ", log.LstdFlags))
	researcher := core.NewResearcher(gateway, registry, cfg.LLM.Routing.Research, cfg.Agents.ToolCallBudget, cfg.Agents.MaxParallelPaths, log.New(log.Writer(), "[RESEARCHER] ", log.LstdFlags))
	synthesizer := core.NewSynthesizer(gateway, cfg.LLM.Routing.Synthesis, log.New(log.Writer(), "[SYNTHESIS] ", log.LstdFlags))

	orchLogger := log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	return core.NewOrchestrator(planner, researcher, synthesizer, st, broker, idx, cfg.Agents.MaxCycles, orchLogger), nil
}
