package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/e2eq/querycore/internal/config"
	"github.com/e2eq/querycore/internal/handler"
	"github.com/e2eq/querycore/internal/metadata"
	"github.com/e2eq/querycore/internal/middleware"
	"github.com/e2eq/querycore/internal/schema"
	"github.com/e2eq/querycore/internal/service"
	"github.com/e2eq/querycore/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	schemas := schema.NewRegistry()
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := schemas.LoadPostgres(ctx, pool); err != nil {
			log.Fatalf("failed to load schema from database: %v", err)
		}
	} else if err := schemas.LoadYAML(ctx, cfg.SchemaPath); err != nil {
		log.Fatalf("failed to load schema from %s: %v", cfg.SchemaPath, err)
	}
	log.Infof("schema loaded: %d entity types", schemas.EntityCount())

	docs := store.NewMemory()
	if cfg.DataPath != "" {
		if err := docs.LoadFile(cfg.DataPath); err != nil {
			log.Fatalf("failed to seed store: %v", err)
		}
	}

	meta := metadata.New(schemas, log.WithField("component", "metadata"))
	gw := service.NewGateway(meta,
		service.WithStore(docs),
		service.WithAggregation(cfg.AggregationEnabled),
		service.WithLimits(service.Limits{Default: cfg.DefaultLimit, Max: cfg.MaxLimit}),
		service.WithLogger(log.WithField("component", "gateway")),
	)

	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Recovery(log), middleware.Logging(log))
	handler.New(gw, log.WithField("component", "handler")).Register(router)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("listening on %s", cfg.Addr())
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
