package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	defaults "github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/agent"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"github.com/vinodismyname/partnerlens/internal/config"
	"github.com/vinodismyname/partnerlens/internal/datasets"
	"github.com/vinodismyname/partnerlens/internal/httpapi"
	"github.com/vinodismyname/partnerlens/internal/registry"
	"github.com/vinodismyname/partnerlens/internal/runtime"
	"github.com/vinodismyname/partnerlens/internal/security"
	"github.com/vinodismyname/partnerlens/internal/service"
	"github.com/vinodismyname/partnerlens/internal/snapshots"
	"github.com/vinodismyname/partnerlens/internal/telemetry"
	"github.com/vinodismyname/partnerlens/pkg/version"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		useStdio        bool
		useHTTP         bool
		addr            string
		shutdownTimeout time.Duration
	)

	flag.BoolVar(&useStdio, "stdio", false, "Run the MCP server over stdio transport")
	flag.BoolVar(&useHTTP, "http", false, "Serve the dashboard REST API")
	flag.StringVar(&addr, "addr", "", "HTTP listen address (overrides PARTNERLENS_HTTP_ADDR)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "Graceful shutdown timeout")
	flag.Parse()

	if !useStdio && !useHTTP {
		fmt.Fprintln(os.Stderr, "no transport selected; use --stdio and/or --http")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	// stdout belongs to the stdio transport
	zerolog.SetGlobalLevel(cfg.Level())
	zlog.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	logger := zlog.With().Str("service", "partnerlens-server").Logger()

	ctx, stop := signal.NotifyContext(logger.WithContext(context.Background()), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secMgr, err := security.NewManager(cfg.AllowedDirs, nil)
	if err != nil {
		logger.Error().Err(err).Msg("security: failed to initialize manager")
		fmt.Fprintln(os.Stderr, "invalid security configuration; check PARTNERLENS_ALLOWED_DIRS")
		os.Exit(1)
	}
	if cfg.EnableIngest {
		if err := secMgr.ValidateConfig(); err != nil {
			logger.Error().Err(err).Msg("security: invalid allow-list configuration")
			fmt.Fprintln(os.Stderr, "ingest enabled without allowed directories; set PARTNERLENS_ALLOWED_DIRS")
			os.Exit(1)
		}
		logger.Info().Strs("allowed_dirs", secMgr.AllowedDirectories()).Msg("security allow-list configured")
	}

	store, err := snapshots.Open(cfg.DataDir)
	if err != nil {
		logger.Error().Err(err).Str("dir", cfg.DataDir).Msg("failed to open snapshot store")
		os.Exit(1)
	}
	defer store.Close()

	limits := runtime.NewLimits(cfg.MaxConcurrentRequests, cfg.MaxLoadedDatasets)
	runtimeController := runtime.NewController(limits)
	runtimeMW := runtime.NewMiddleware(runtimeController)

	cache := datasets.NewManager(cfg.DatasetIdleTTL, defaults.DefaultDatasetCleanupPeriod, runtimeController, store, time.Now)
	cache.Start()

	hooks := telemetry.NewHooks(logger)
	catalog := analytics.Default()

	model, err := newModel(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Str("provider", cfg.Provider).Msg("language model unavailable; chat disabled")
	}
	dispatcher := agent.New(model, catalog)
	dispatcher.MaxSteps = cfg.MaxAgentStep
	dispatcher.Limiter = rate.NewLimiter(rate.Limit(cfg.ModelRPS), defaults.DefaultModelRequestBurst)
	dispatcher.Observer = hooks

	svc := service.New(store, cache, dispatcher)

	toolRegistry := registry.New()
	toolRegistry.WithModel(model, cfg.ModelName)
	toolFilter := registry.NewToolFilter(cfg.EnableIngest, toolRegistry)

	srv := server.NewMCPServer(
		"Partner Analytics Server",
		version.Version(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithHooks(hooks.Server()),
		server.WithToolHandlerMiddleware(runtimeMW.ToolMiddleware),
		server.WithToolFilter(func(ctx context.Context, tools []mcp.Tool) []mcp.Tool { return toolFilter.FilterTools(ctx, tools) }),
	)

	deps := registry.Deps{Service: svc, Catalog: catalog, Security: secMgr, Limits: runtimeController.LimitsSnapshot()}
	registry.RegisterDatasetTools(srv, toolRegistry, deps)
	if err := registry.RegisterAnalyticsTools(srv, toolRegistry, deps); err != nil {
		logger.Error().Err(err).Msg("failed to register analytics tools")
		os.Exit(1)
	}

	sched, err := startMaintenance(ctx, cfg.MaintenanceSchedule, svc, logger)
	if err != nil {
		logger.Error().Err(err).Str("schedule", cfg.MaintenanceSchedule).Msg("invalid maintenance schedule")
		os.Exit(1)
	}

	logger.Info().
		Ctx(ctx).
		Str("version", version.String()).
		Int("max_concurrent_requests", limits.MaxConcurrentRequests).
		Int("max_loaded_datasets", limits.MaxLoadedDatasets).
		Bool("model_configured", model != nil).
		Int("model_context_size", toolRegistry.ModelContextSize()).
		Bool("stdio", useStdio).
		Bool("http", useHTTP).
		Msg("server bootstrap configured")

	var api *httpapi.Server
	if useHTTP {
		api = httpapi.New(httpapi.Config{
			Addr:      cfg.HTTPAddr,
			Log:       logger,
			Service:   svc,
			Security:  secMgr,
			Runtime:   runtimeController,
			UploadDir: cfg.UploadDir,
			Version:   version.String(),
		})
		go func() {
			if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("HTTP server error")
			}
			stop()
		}()
	}

	if useStdio {
		go func() {
			if err := server.ServeStdio(srv); err != nil {
				// stderr so clients don't misinterpret output
				fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
			}
			stop()
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if api != nil {
		if err := api.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown error")
		}
	}
	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn().Msg("maintenance job still running at shutdown")
	}
	if err := cache.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("dataset cache shutdown error")
	}
	logger.Info().Msg("server stopped")
}
