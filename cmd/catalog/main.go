package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/shoplite/catalog-orders/internal/catalog"
	"github.com/shoplite/catalog-orders/internal/config"
	"github.com/shoplite/catalog-orders/internal/events"
	"github.com/shoplite/catalog-orders/internal/httpx"
	kafkax "github.com/shoplite/catalog-orders/internal/kafka"
	"github.com/shoplite/catalog-orders/internal/obs"
	"github.com/shoplite/catalog-orders/internal/postgres"
	"github.com/shoplite/catalog-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := obs.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 8)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	repo := &catalog.Repo{DB: db}
	reconciler := &catalog.Reconciler{
		Store:       repo,
		Dedup:       redisx.Cache{RDB: rdb},
		ServiceName: cfg.ServiceName,
		MaxAttempts: cfg.ApplyMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		Log:         log,
	}
	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, events.TopicOrderCreated, cfg.ConsumerWorkers, log)

	router := httpx.NewRouter()
	ch := &httpx.CatalogHandler{Store: repo}
	ch.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		log.Info("order_created consumer started",
			"group", cfg.ConsumerGroup, "topic", events.TopicOrderCreated, "workers", cfg.ConsumerWorkers)
		return consumer.Start(gctx, reconciler.HandleOrderCreated)
	})

	if err := g.Wait(); err != nil {
		log.Error("catalog service exit", "err", err)
		os.Exit(1)
	}
	log.Info("catalog service stopped")
}
