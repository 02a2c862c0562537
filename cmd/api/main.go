package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/league/internal/api"
	"example.com/league/internal/auth"
	"example.com/league/internal/config"
	"example.com/league/internal/matcher"
	"example.com/league/internal/outbox"
	persistence "example.com/league/internal/persistence/postgres"
	"example.com/league/internal/reconcile"
	httptransport "example.com/league/internal/transport/http"
	"example.com/league/internal/upstream"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()
	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	client := upstream.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamFetchTimeout)
	tokens := upstream.NewOAuthTokenProvider(repo, cfg.UpstreamTokenURL, cfg.UpstreamClientID, cfg.UpstreamClientSecret, cfg.UpstreamFetchTimeout)
	retrier := upstream.NewRetrier(client, cfg.EffortRetryDelays)

	m := matcher.New(client, tokens, retrier, nil)
	service := reconcile.NewService(repo, m, cfg.BatchParallelism, nil)
	handler := api.NewHandler(service, cfg.WebhookVerifyToken, cfg.WebhookTimeout, nil)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	logged := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logged(mux)))

	go func() {
		log.Printf("league-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("api shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	// The dispatcher stops on the same signal context as the server.
	dispatcher.Wait()
}
