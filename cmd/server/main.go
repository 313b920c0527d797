package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/ban-pick-server/internal/archive"
	"github.com/DoyleJ11/ban-pick-server/internal/config"
	"github.com/DoyleJ11/ban-pick-server/internal/feed"
	"github.com/DoyleJ11/ban-pick-server/internal/httpapi"
	"github.com/DoyleJ11/ban-pick-server/internal/hub"
	"github.com/DoyleJ11/ban-pick-server/internal/logging"
	"github.com/DoyleJ11/ban-pick-server/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Development(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	var (
		recorder archive.Recorder = archive.Nop{}
		drafts   httpapi.DraftLister
	)
	if cfg.DatabaseURL != "" {
		store, err := archive.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()
		recorder, drafts = store, store
		log.Info("draft archive enabled")
	}

	var publisher feed.Publisher = feed.Nop{}
	if cfg.RedisAddr != "" {
		p, err := feed.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.FeedKey)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
		log.Info("action feed enabled", zap.String("redis", cfg.RedisAddr), zap.String("key", cfg.FeedKey))
	}

	h := hub.NewHub(ctx, cfg.Schedule, hub.Options{
		CodeLength:   cfg.RoomIDLength,
		IdleTimeout:  cfg.IdleTimeout,
		ReapInterval: cfg.ReapInterval,
	}, log.Named("hub"))
	defer h.Shutdown()

	wsServer := ws.NewServer(h, ws.Options{
		RoomIDLength:   cfg.RoomIDLength,
		NameMaxLength:  cfg.NameMaxLength,
		OriginPatterns: cfg.AllowedOrigins,
		Archive:        recorder,
		Feed:           publisher,
	}, log.Named("ws"))
	defer wsServer.Wait()

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, wsServer, httpapi.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Drafts:         drafts,
		}, log.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return h.Run(gctx, wsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
