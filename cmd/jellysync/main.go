package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"jellysync/internal/config"
	"jellysync/internal/coordinator"
	"jellysync/internal/discovery"
	"jellysync/internal/jellyfin"
	"jellysync/internal/logger"
	"jellysync/internal/server"
	"jellysync/internal/sessions"
)

func main() {
	configPath := flag.String("config", "./jellysync.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("loading config", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer log.Sync()

	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = uuid.NewString()
		log.Info("generated device id", zap.String("device_id", deviceID))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := coordinator.NewRegistry()
	defer registry.Close()

	for _, srv := range cfg.Servers {
		c := coordinator.New(srv, deviceID, log,
			coordinator.WithSessionOptions(
				sessions.WithIntervals(cfg.RelaxedInterval.Std(), cfg.FallbackInterval.Std()),
			),
			coordinator.WithCacheOptions(
				discovery.WithTTL(cfg.DiscoveryTTL.Std()),
			),
		)
		if err := c.Start(ctx); err != nil {
			if jellyfin.IsAuth(err) {
				log.Error("server rejected credentials, re-authentication required",
					zap.String("server", srv.Name), zap.Error(err))
			} else {
				log.Warn("server unreachable, skipping",
					zap.String("server", srv.Name), zap.Error(err))
			}
			continue
		}
		if err := registry.Add(srv.ID, c); err != nil {
			log.Warn("registering coordinator", zap.String("server", srv.Name), zap.Error(err))
			c.Stop()
		}
	}

	srv := server.New(registry, log)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Listen))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
