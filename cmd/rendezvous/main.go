package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/rendezvous"
)

type config struct {
	Addr           string        `env:"ADDR" envDefault:":8090"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	RoomTTL        time.Duration `env:"ROOM_TTL" envDefault:"600s"`
	RateLimit      int           `env:"RATE_LIMIT" envDefault:"10"`
	RateWindow     time.Duration `env:"RATE_WINDOW" envDefault:"60s"`
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	store := rendezvous.NewStore(cfg.RoomTTL, cfg.RateLimit, cfg.RateWindow)
	metrics := rendezvous.NewMetrics(prometheus.DefaultRegisterer)
	relay := rendezvous.NewServer(store, cfg.AllowedOrigins, metrics, logger)

	r := chi.NewRouter()
	r.Mount("/", relay.Routes())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Addr, Handler: r}

	done := make(chan struct{})
	go relay.Sweeper(done)

	go func() {
		logger.Info("rendezvous relay listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
