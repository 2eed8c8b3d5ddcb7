package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"agentmesh/internal/adapter/credstore"
	"agentmesh/internal/adapter/gateway"
	"agentmesh/internal/adapter/mcptool"
	"agentmesh/internal/adapter/signoz"
	"agentmesh/internal/adapter/store"
	"agentmesh/internal/infra/config"
	"agentmesh/internal/infra/logger"
	"agentmesh/internal/infra/tracer"
	"agentmesh/internal/usecase/contextcache"
	"agentmesh/internal/usecase/eventbus"
	"agentmesh/internal/usecase/graph"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Store
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	st, err := store.New(cfg.Database.Path, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer st.Close()

	// 4. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 5. Credential stores
	registry := credstore.NewRegistry(credstore.NewMemoryStore())
	if cfg.Credentials.KeychainEnabled {
		registry.Register(credstore.NewVaultStore(
			cfg.Credentials.KeychainPath, cfg.Credentials.KeychainPassphrase, log))
	}
	if cfg.Credentials.Nango.SecretKey != "" {
		registry.Register(credstore.NewNangoStore(
			cfg.Credentials.Nango.Host, cfg.Credentials.Nango.SecretKey,
			cfg.Credentials.Nango.Timeout, log))
	}
	log.Info("credential stores registered", "stores", registry.IDs())

	// 6. Usecases
	graphs := graph.NewService(st, bus, log)
	cache := contextcache.NewService(st.ContextCache, bus, log)

	// 7. MCP tool discovery + health refresher
	discoverer := mcptool.NewDiscoverer(cfg.MCP.CallTimeout, log)
	refresher := mcptool.NewRefresher(discoverer, st.Tools, st.Credentials, registry, bus, log)
	if cfg.MCP.RefreshSchedule != "" {
		if err := refresher.Start(cfg.MCP.RefreshSchedule); err != nil {
			return fmt.Errorf("mcp refresher: %w", err)
		}
		defer refresher.Stop()
	}

	// 8. Trace reads
	var traceReads *signoz.Service
	if cfg.SigNoz.URL != "" {
		traceReads = signoz.NewService(signoz.NewClient(cfg.SigNoz, log), log)
	}

	// 9. Gateway
	deps := gateway.Deps{
		Store:     st,
		Graphs:    graphs,
		Cache:     cache,
		Signoz:    traceReads,
		Refresher: refresher,
		Version:   version,
		StartTime: time.Now(),
	}
	srv := gateway.NewServer(cfg.Server, deps, bus, gateway.NewAuthenticator(cfg.Server.Auth), log)

	// 10. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			log.Error("gateway shutdown error", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
