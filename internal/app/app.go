package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	server "armada/server"
	servernet "armada/server/internal/net"
	"armada/server/internal/observability"
	"armada/server/internal/sim"
	"armada/server/internal/telemetry"
	"armada/server/logging"
	loggingSinks "armada/server/logging/sinks"
)

type Config struct {
	// ConfigPath points at the YAML configuration file. Empty means defaults.
	ConfigPath string
	// Addr overrides the listen address from the file when non-empty.
	Addr string
	// ClientDir serves static files from / when non-empty.
	ClientDir string

	Logger        telemetry.Logger
	Observability observability.Config
}

// Run wires the logging router, hub, config watcher, and HTTP server, then
// blocks until ctx is cancelled or the listener fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	serverCfg, err := server.LoadConfig(cfg.ConfigPath)
	if err != nil {
		return err
	}
	if cfg.Addr != "" {
		serverCfg.Addr = cfg.Addr
	}

	var namedSinks []logging.NamedSink
	if serverCfg.Log.HasSink("console") {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "console",
			Sink: loggingSinks.NewConsoleSink(os.Stdout, serverCfg.Log.Console),
		})
	}
	if serverCfg.Log.HasSink("json") && serverCfg.Log.JSON.FilePath != "" {
		file, err := os.OpenFile(serverCfg.Log.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open json log file: %w", err)
		}
		defer file.Close()
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "json",
			Sink: loggingSinks.NewJSON(file, serverCfg.Log.JSON.FlushInterval),
		})
	}

	router, err := logging.NewRouter(logging.SystemClock{}, serverCfg.Log, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := logging.NewMetrics()
	hub := server.NewHub(serverCfg, sim.Deps{
		Logger:    telemetryLogger,
		Metrics:   telemetry.WrapMetrics(metrics),
		Clock:     logging.SystemClock{},
		Publisher: router,
	})

	stop := make(chan struct{})
	go hub.Run(stop)
	defer close(stop)

	if cfg.ConfigPath != "" {
		watcher, err := server.WatchConfig(cfg.ConfigPath, func(next server.ServerConfig) {
			if ok, reason := hub.UpdateTuning(next.World.Nav); !ok {
				telemetryLogger.Printf("config reload dropped: %s", reason)
				return
			}
			telemetryLogger.Printf("navigation tunables reloaded from %s", cfg.ConfigPath)
		}, func(err error) {
			telemetryLogger.Printf("config watch error: %v", err)
		})
		if err != nil {
			telemetryLogger.Printf("config watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	observabilityCfg := cfg.Observability.FromEnv(telemetryLogger.Printf)

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     cfg.ClientDir,
		Logger:        fallbackLogger,
		Observability: observabilityCfg,
	})

	srv := &http.Server{Addr: serverCfg.Addr, Handler: handler}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
