package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/countentropy/countentropy/internal/alerts"
	"github.com/countentropy/countentropy/internal/api"
	"github.com/countentropy/countentropy/internal/auth"
	"github.com/countentropy/countentropy/internal/compute"
	"github.com/countentropy/countentropy/internal/config"
	"github.com/countentropy/countentropy/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("entropyd starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())
	slog.Info("config loaded",
		"http_port", cfg.HTTPPort,
		"auth_mode", cfg.Auth.Mode,
		"sources", len(cfg.Sources),
		"collect_interval", cfg.CollectInterval,
		"result_ttl", cfg.ResultTTL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Result store with background TTL eviction.
	st := store.New(cfg.ResultTTL)
	go st.Run(ctx)

	// Alerts engine evaluates rules on every result. Rules are fixed for the
	// lifetime of the process; a reload only rebuilds sources.
	alertEngine := alerts.New(cfg.Alerts)

	engine := compute.NewEngine()
	set := newSourceSet(engine)
	set.apply(cfg)
	if set.len() == 0 {
		slog.Warn("no sources configured, entropyd will idle")
	}

	go func() {
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			level.Set(updated.SlogLevel())
			set.apply(updated)
			slog.Info("config hot-reloaded", "sources", set.len())
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Collect loop: poll every CollectInterval, fold bags, store, alert.
	go func() {
		ticker := time.NewTicker(cfg.CollectInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				for _, res := range set.collect(ctx, t) {
					st.Put(res)
					alertEngine.Evaluate(res)
					slog.Debug("stored result",
						"source", res.SourceID,
						"state", res.State,
						"entropy", res.Entropy,
					)
				}
			}
		}
	}()

	// /metrics stays open so a Prometheus scraper needs no key.
	authMW := auth.APIKey(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key(), "/metrics")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           authMW(api.New(st, alertEngine)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("entropyd shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	set.close()
	alertEngine.Wait()
}
