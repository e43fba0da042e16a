// Package main implements the debug broker service entry point.
//
// The broker exposes a DOS-era emulator as a live debugging target: a
// REST control surface for backend selection, launch, registers,
// memory, breakpoints, execution control, and snapshots, plus a single
// WebSocket endpoint that multiplexes status/debug/memory/capture
// channels to a browser debugger UI.
//
// The startup sequence:
// 1. Load and validate configuration
// 2. Initialize structured logging
// 3. Build the backend factory and holder, the capture pipeline, and
//    the WebSocket broker
// 4. Set up JWT authentication for mutating REST endpoints
// 5. Start the REST+WebSocket server
// 6. Start the host health server on its own port
//
// Graceful shutdown stops the REST+WebSocket server, the health server
// and the attached backend concurrently, each bounded by a timeout.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dosdebug/broker/internal/apiserver"
	"github.com/dosdebug/broker/internal/backend"
	"github.com/dosdebug/broker/internal/capture"
	"github.com/dosdebug/broker/internal/common"
	"github.com/dosdebug/broker/internal/config"
	"github.com/dosdebug/broker/internal/health"
	"github.com/dosdebug/broker/internal/logging"
	"github.com/dosdebug/broker/internal/security"
	"github.com/dosdebug/broker/internal/wsbroker"
)

func main() {
	configManager := config.NewConfigManager()
	configPath := "config/default.yaml"
	if p := os.Getenv("DEBUGBROKER_CONFIG"); p != "" {
		configPath = p
	}
	if err := configManager.LoadConfig(configPath); err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()

	if err := logging.SetupLogging(&logging.LoggingConfig{
		Level:          cfg.Logging.Level,
		Format:         cfg.Logging.Format,
		FileEnabled:    cfg.Logging.FileEnabled,
		FilePath:       cfg.Logging.FilePath,
		MaxFileSizeMB:  cfg.Logging.MaxFileSizeMB,
		BackupCount:    cfg.Logging.BackupCount,
		ConsoleEnabled: cfg.Logging.ConsoleEnabled,
	}); err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}

	logger := logging.GetLogger("debugbrokerd")
	logger.Info("starting debug broker")

	if err := configManager.WatchConfig(); err != nil {
		logger.WithError(err).Warn("config hot-reload disabled")
	}

	holder := backend.NewHolder()
	factory := backend.NewFactory(logging.GetLogger("backend-factory"))
	pipeline := capture.NewPipeline(logging.GetLogger("capture"))
	broker := wsbroker.NewBroker(holder, logging.GetLogger("wsbroker"))

	var auth *security.AuthMiddleware
	if cfg.Security.RequireAuth {
		jwtHandler, err := security.NewJWTHandler(cfg.Security.JWTSecret, logging.GetLogger("security"))
		if err != nil {
			logger.WithError(err).Fatal("failed to create JWT handler")
		}
		auth = security.NewAuthMiddleware(jwtHandler, logging.GetLogger("security-middleware"))
	} else {
		logger.Warn("authentication disabled by configuration; all endpoints are open")
	}

	srv := apiserver.New(configManager, holder, factory, pipeline, broker, auth, logging.GetLogger("apiserver"))

	hostMonitor := health.NewHostMonitor("/")
	healthMonitor := health.NewHealthMonitor("1.0.0", hostMonitor, holder)

	var healthServer *health.HTTPHealthServer
	if cfg.Health.Enabled {
		var err error
		healthServer, err = health.NewHTTPHealthServer(true, cfg.Server.Host, cfg.Server.Port+1, cfg.Health.Path, healthMonitor, logging.GetLogger("health"))
		if err != nil {
			logger.WithError(err).Fatal("failed to create HTTP health server")
		}
	}

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.Start(ctx, cfg.Server.Host, cfg.Server.Port)
	}()

	healthErrCh := make(chan error, 1)
	if healthServer != nil {
		go func() {
			healthErrCh <- healthServer.Start(ctx)
		}()
		logger.Info("health server started")
	}

	logger.WithField("addr", cfg.Server.Host).Info("debug broker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("received shutdown signal, stopping services")
	case err := <-serverErrCh:
		if err != nil {
			logger.WithError(err).Error("apiserver exited unexpectedly")
		}
	}

	cancelCtx()
	configManager.StopWatch()

	const shutdownTimeout = 15 * time.Second

	stoppables := map[string]common.Stoppable{
		"apiserver": common.Func(func(context.Context) error { return srv.Stop() }),
	}
	if healthServer != nil {
		stoppables["health server"] = common.Func(func(context.Context) error { return healthServer.Stop() })
	}
	if be, ok := holder.Peek(); ok {
		stoppables["attached backend"] = common.Func(be.Shutdown)
	}

	var wg sync.WaitGroup
	for name, svc := range stoppables {
		wg.Add(1)
		go func(name string, svc common.Stoppable) {
			defer wg.Done()
			if err := common.StopWithTimeout(svc, shutdownTimeout); err != nil {
				logger.WithError(err).WithField("service", name).Error("error stopping service")
			}
		}(name, svc)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all services stopped cleanly")
	case <-time.After(shutdownTimeout + 2*time.Second):
		logger.Error("shutdown timeout, forcing exit")
		os.Exit(1)
	}

	logger.Info("debug broker stopped")
}
