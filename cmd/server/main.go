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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kilat-Pet-Delivery/service-navigation/internal/application"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/config"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/domain/navigation"
	navEvents "github.com/Kilat-Pet-Delivery/service-navigation/internal/events"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/handler"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/hub"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/kafka"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/logger"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/platform/middleware"
	"github.com/Kilat-Pet-Delivery/service-navigation/internal/routing"
)

const serviceName = "service-navigation"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("instance_id", cfg.InstanceID),
		zap.String("osrm", cfg.Routing.OSRMBaseURL),
	)

	// Initialize routing engine adapter
	osrm := routing.NewOSRMClient(routing.OSRMConfig{
		BaseURL: cfg.Routing.OSRMBaseURL,
		Profile: cfg.Routing.Profile,
		Timeout: cfg.Routing.Timeout,
	}, log.Named("osrm"))

	retryPolicy := routing.DefaultRetryPolicy()
	retryPolicy.MaxRetries = cfg.Routing.MaxRetries
	fetcher := routing.NewRetryingFetcher(osrm, retryPolicy, log)
	lookupFetcher := routing.NewCachingFetcher(fetcher, cfg.Routing.CacheTTL)

	// Initialize Kafka producer
	var publisher application.EventPublisher
	var producer *kafka.Producer
	if cfg.Kafka.Enabled() {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer func() { _ = producer.Close() }()

		// Publish off the session path; a slow broker only delays Kafka.
		asyncPublisher := application.NewAsyncPublisher(
			navEvents.NewKafkaPublisher(producer, cfg.Kafka.Topic, cfg.InstanceID),
			application.AsyncPublisherConfig{
				QueueSize: cfg.Kafka.PublishQueue,
				Timeout:   cfg.Kafka.PublishTimeout,
			},
			log.Named("publisher"),
		)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := asyncPublisher.Close(flushCtx); err != nil {
				log.Warn("event queue not fully flushed", zap.Error(err), zap.Uint64("dropped", asyncPublisher.Dropped()))
			}
		}()
		publisher = asyncPublisher
	} else {
		log.Info("kafka disabled, events stay local")
	}

	// Initialize session registry
	registry := application.NewRegistry(application.RegistryConfig{
		Fetcher:   fetcher,
		Publisher: publisher,
		Session: navigation.SessionConfig{
			DeviationThresholdMeters: cfg.Navigation.DeviationThresholdMeters,
			RecalcCooldown:           cfg.Navigation.RecalcCooldown,
		},
		AbandonAfter: cfg.Navigation.AbandonAfter,
		Hub: hub.Config{
			SendTimeout: cfg.Broadcast.SendTimeout,
			MaxParallel: cfg.Broadcast.MaxParallel,
		},
	}, log)
	defer registry.Close()

	// Initialize route lookup service
	routeService := application.NewRouteService(lookupFetcher, routing.NewEnricher(nil, nil, nil, log), log)

	// Initialize HTTP handlers
	routeHandler := handler.NewRouteHandler(routeService)
	wsHandler := handler.NewWebSocketHandler(registry, log)
	healthHandler := handler.NewHealthHandler(registry, serviceName)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register routes
	healthHandler.RegisterRoutes(router)
	routeHandler.RegisterRoutes(&router.RouterGroup)
	wsHandler.RegisterRoutes(&router.RouterGroup)

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Relay events produced by other instances to local observers
	if cfg.Kafka.Enabled() {
		relay := navEvents.NewRelayConsumer(
			cfg.Kafka.Brokers,
			cfg.Kafka.GroupPrefix,
			cfg.Kafka.Topic,
			cfg.InstanceID,
			registry,
			log,
		)
		defer func() { _ = relay.Close() }()

		g.Go(func() error {
			log.Info("starting navigation relay consumer")
			if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("relay consumer: %w", err)
			}
			return nil
		})
	}

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down " + serviceName + "...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server forced shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error(serviceName+" exited with error", zap.Error(err))
	}
	log.Info(serviceName + " stopped")
}
