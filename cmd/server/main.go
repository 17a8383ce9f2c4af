package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tablebill/api/internal/cache"
	"github.com/tablebill/api/internal/config"
	"github.com/tablebill/api/internal/database"
	"github.com/tablebill/api/internal/events"
	"github.com/tablebill/api/internal/handler"
	"github.com/tablebill/api/internal/metrics"
	"github.com/tablebill/api/internal/router"
	"github.com/tablebill/api/internal/service"
	"github.com/tablebill/api/internal/ws"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	hub := ws.NewHub()
	go hub.Run(ctx)

	var orderCache handler.OrderCache = cache.NopCache{}
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisOrderCache(cfg.Redis)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			log.Printf("WARNING: redis at %s unreachable, order cache disabled: %v", cfg.Redis.Addr, err)
		} else {
			orderCache = rc
			log.Printf("Order cache enabled (redis %s, ttl %s)", cfg.Redis.Addr, cfg.Redis.TTL)
		}
	}

	var pub service.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka)
		defer kp.Close()
		pub = kp
		log.Printf("Publishing order events to %s on %v", cfg.Kafka.OrdersTopic, cfg.Kafka.Brokers)
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	queries := database.New(pool)
	r := router.New(cfg, queries, pool, hub, orderCache, pub, m)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: graceful shutdown: %v", err)
	}
}
