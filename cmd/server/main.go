package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/voxcord/lobbyd/internal/auth"
	"github.com/voxcord/lobbyd/internal/config"
	"github.com/voxcord/lobbyd/internal/dashboard"
	"github.com/voxcord/lobbyd/internal/database"
	"github.com/voxcord/lobbyd/internal/handlers"
	"github.com/voxcord/lobbyd/internal/lifecycle"
	"github.com/voxcord/lobbyd/internal/middleware"
	"github.com/voxcord/lobbyd/internal/platform"
	"github.com/voxcord/lobbyd/internal/policy"
	"github.com/voxcord/lobbyd/internal/rename"
	"github.com/voxcord/lobbyd/internal/syncfan"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.PrivateKeyPath != "" {
		err = auth.InitFromPath(cfg.PrivateKeyPath, cfg.PublicKeyPath, cfg.TokenTTL)
	} else {
		err = auth.Init(cfg.TokenTTL)
	}
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer pool.Close()
	store := database.New(pool)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	gw := platform.NewClient(cfg.PlatformAPIURL, cfg.PlatformWSURL, cfg.PlatformToken, logger)
	eng := &policy.Engine{GW: gw, Log: logger}

	manager := lifecycle.New(gw, store, eng, cfg.SweepInterval, logger)

	fanout := syncfan.New(rdb, gw, logger)
	fanout.Sink = manager
	manager.Publisher = fanout

	pairings := auth.NewPairings(rdb, cfg.PairingTTL)
	panel := dashboard.New(gw, store, manager, pairings, logger)
	manager.Panel = panel

	throttle := rename.New(cfg.RenameWindow, cfg.RenameBurst, manager.ApplyRename, logger)
	manager.Renamer = throttle

	go func() {
		if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("lifecycle manager exited: %v", err)
			stop()
		}
	}()
	go func() {
		if err := panel.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Errorf("dashboard controller exited: %v", err)
			stop()
		}
	}()

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.Handle("/sync/ws", logged(handlers.SyncWSHandler(logger, rdb)))
	mux.Handle("/pair/claim", logged(handlers.ClaimPairingHandler(logger, pairings)))
	mux.Handle("/admin/mappings", logged(handlers.EnsureMappingHandler(logger, manager, cfg.AdminToken)))
	mux.Handle("/healthz", handlers.HealthHandler())

	srv := &http.Server{Addr: cfg.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Infof("Running on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server exited: %v", err)
	}
}
