package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ovo-bot/ovo-agent/internal/api"
	"github.com/ovo-bot/ovo-agent/internal/biz"
	"github.com/ovo-bot/ovo-agent/internal/conf"
	"github.com/ovo-bot/ovo-agent/internal/data"
	"github.com/ovo-bot/ovo-agent/internal/infra/clock"
	"github.com/ovo-bot/ovo-agent/internal/infra/feishu"
	"github.com/ovo-bot/ovo-agent/internal/mcp"
	"github.com/ovo-bot/ovo-agent/internal/server"
	"github.com/ovo-bot/ovo-agent/internal/service"
)

const version = "v0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile       string
		templatesPath string
		adminAddr     string
		logFormat     string
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("ovo-agent", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	flagSet.StringVar(&templatesPath, "templates", "", "persona and templates YAML file (default: search configs/templates.yaml)")
	flagSet.StringVar(&adminAddr, "admin-addr", "", "admin HTTP listen address, overrides ADMIN_ADDR")
	flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json, overrides LOG_FORMAT")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("ovo-agent", version)
		return nil
	}

	// Load configuration
	cfg, err := conf.Load(envFile)
	if err != nil {
		return err
	}
	if flagSet.Changed("admin-addr") {
		cfg.Admin.Addr = adminAddr
	}
	if flagSet.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.LogFormat, cfg.Debug)
	slog.SetDefault(logger)

	templates, loadedFrom, err := conf.LoadTemplates(templatesPath)
	if err != nil {
		return err
	}
	if loadedFrom != "" {
		logger.Info("templates loaded", "path", loadedFrom)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize clients
	feishuClient := feishu.NewClient(cfg.Feishu.AppID, cfg.Feishu.AppSecret, logger)
	feishuClient.SetDownloadDir(cfg.Feishu.DownloadDir)

	generator := data.NewGenerator(data.GeneratorConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond,
	}, logger)

	// Initialize repository layer
	repos, err := data.NewRepositories(data.Options{
		DBPath:        cfg.Storage.DBPath,
		GroupDefault:  cfg.Agent.GroupDefaultEnabled,
		GroupSeed:     cfg.Agent.GroupEnabled,
		SendPerSecond: cfg.Feishu.SendRate,
		SendBurst:     cfg.Feishu.SendBurst,
	}, feishuClient, generator)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer repos.Close()
	logger.Info("storage ready", "db", cfg.Storage.DBPath)

	// Initialize usecase and service layers
	clk := clock.Real()
	uc := biz.NewUsecases(cfg.ToUsecaseOptions(templates), clk)

	loop := service.NewAgentLoop(service.AgentLoopConfig{
		ReplyEnabled: cfg.Agent.ReplyEnabled,
		TurnTimeout:  cfg.Agent.TurnTimeout(),
	}, uc, service.AgentLoopDeps{
		Messages:  repos.Messages,
		Memory:    repos.Memory,
		Tools:     repos.Tools,
		Generator: repos.Generator,
		Groups:    repos.Groups,
	}, clk, logger)
	loop.Start(ctx)
	defer loop.Stop()

	runner := service.NewProactiveRunner(service.ProactiveRunnerConfig{
		Enabled:  cfg.Proactive.Enabled,
		Interval: cfg.Proactive.TickInterval(),
	}, uc, repos.Groups, loop, clk, logger)
	runner.Start(ctx)
	defer runner.Stop()

	// Admin HTTP server with MCP tools
	admin := service.NewAdminService(uc, repos.Groups, repos.Memory, loop, clk)
	var apiServer *api.Server
	if cfg.Admin.Addr != "" {
		apiServer = api.NewServer(admin, mcp.NewServer(admin, version).Handler(), cfg.Admin.Addr, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("admin server stopped", "error", err)
			}
		}()
	}

	// Feishu intake blocks until the context is cancelled
	srv := server.NewFeishuServer(feishuClient, loop, clk, logger)
	logger.Info("starting ovo-agent", "version", version, "reply_enabled", cfg.Agent.ReplyEnabled, "proactive", cfg.Proactive.Enabled)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("feishu connection failed", "error", err)
		}
	}

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn("admin server shutdown", "error", err)
		}
	}
	return nil
}

func newLogger(format string, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
