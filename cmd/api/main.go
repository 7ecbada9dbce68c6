package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"eth-economic-model/internal/api"
	"eth-economic-model/internal/engine"
	"eth-economic-model/internal/experiment"
	"eth-economic-model/internal/jobs"
	"eth-economic-model/internal/logging"
)

func main() {
	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Stderr)
	log := logging.Component(logger, "server")

	workers := 0
	if v := os.Getenv("API_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Fatalf("invalid API_WORKERS %q", v)
		}
		workers = n
	}
	var origins []string
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Each job runs its trajectories on one engine worker; jobs run in parallel.
	eng := engine.New(engine.WithWorkers(1), engine.WithLogger(logging.Component(logger, "engine")))
	runner := experiment.NewRunner(eng, logging.Component(logger, "experiment"))
	queue := jobs.NewQueue(runner,
		jobs.WithWorkers(workers),
		jobs.WithLogger(logging.Component(logger, "jobs")),
		jobs.WithRegisterer(registry),
	)

	router := api.NewRouter(queue, api.Options{
		Registry:    registry,
		Log:         logging.Component(logger, "api"),
		CORSOrigins: origins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.WithField("addr", srv.Addr).Info("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	queue.Close()
}
