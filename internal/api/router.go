// Package api exposes the simulation job queue over HTTP.
package api

import (
	"eth-economic-model/internal/api/handlers"
	"eth-economic-model/internal/api/middleware"
	"eth-economic-model/internal/jobs"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// Registry backs /metrics. A fresh registry is used when nil.
	Registry    *prometheus.Registry
	Log         *logrus.Entry
	CORSOrigins []string
}

// NewRouter wires the handlers and middleware around queue.
func NewRouter(queue *jobs.Queue, opts Options) *gin.Engine {
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	log := opts.Log.WithField("component", "api")

	router := gin.New()
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.Logger(log))
	router.Use(middleware.CORS(opts.CORSOrigins))
	router.Use(middleware.Metrics(opts.Registry))

	experimentHandler := handlers.NewExperimentHandler(log)
	simulationHandler := handlers.NewSimulationHandler(queue, log)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.GET("/experiments", experimentHandler.ListExperiments)
		api.GET("/parameters", experimentHandler.ListParameters)

		api.POST("/simulations", simulationHandler.CreateSimulation)
		api.GET("/simulations", simulationHandler.ListSimulations)
		api.GET("/simulations/:id", simulationHandler.GetSimulation)
		api.GET("/simulations/:id/trajectory", simulationHandler.GetTrajectory)
		api.DELETE("/simulations/:id", simulationHandler.CancelSimulation)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
