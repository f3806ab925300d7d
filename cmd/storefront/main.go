// Package main runs the storefront service: JSON API, HTML pages and realtime updates.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/abgdnv/storefront/internal/app"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/idempotency"
	"github.com/abgdnv/storefront/internal/realtime"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/bootstrap"
	pkgconfig "github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/abgdnv/storefront/pkg/messaging"
	pnats "github.com/abgdnv/storefront/pkg/nats"
	"github.com/abgdnv/storefront/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"
)

const serviceName = "storefront"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
	log.Println("application stopped gracefully")
}

// run loads the configuration, connects the backing services and serves HTTP until ctx is cancelled.
func run(ctx context.Context) error {
	cfg, cfgErr := configloader.Load[*config.Config](serviceName, config.Defaults())
	if cfgErr != nil {
		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}
	log.Printf("Configuration loaded: %v", cfg)

	logger := bootstrap.NewLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Telemetry.Traces.Enabled {
		tracerProvider, err := telemetry.NewTracerProvider(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to create tracer provider: %w", err)
		}
		// gracefully shutdown tracer provider
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down tracer provider")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown tracer provider: %w", err)
			}
			return nil
		})
	}

	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		meterProvider, handler, err := telemetry.NewMeterProvider(serviceName)
		if err != nil {
			return fmt.Errorf("failed to create meter provider: %w", err)
		}
		metricsHandler = handler
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			if err := meterProvider.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shutdown meter provider: %w", err)
			}
			return nil
		})
	}

	stores, closeStores, err := newStores(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	keys, closeKeys, err := newIdempotencyStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeKeys()

	// every instance gets its own identity on the broker
	instanceID := uuid.NewString()

	var relay *realtime.Relay
	var relayBroadcaster service.Broadcaster
	var js jetstream.JetStream
	if cfg.Nats.Enabled {
		natsConn, err := pnats.NewClient(cfg.Nats.Url, cfg.Nats.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create NATS connection: %w", err)
		}
		defer natsConn.Close()
		js, err = pnats.NewJetStreamContext(natsConn)
		if err != nil {
			return fmt.Errorf("failed to get JetStream context: %w", err)
		}
		if err := pnats.EnsureStream(ctx, js, cfg.Nats.Stream, cfg.Nats.SubjectPrefix); err != nil {
			return err
		}
		publisher := messaging.NewBreakerPublisher("realtime-relay", pnats.NewNatsPublisher(js), cfg.CircuitBreaker)
		relay = realtime.NewRelay(publisher, cfg.Nats.SubjectPrefix, instanceID, cfg.Realtime.PublishTimeout, logger)
		relayBroadcaster = relay
		logger.Info("Realtime relay enabled", slog.String("stream", cfg.Nats.Stream), slog.String("instance", instanceID))
	}

	deps := app.SetupDependencies(stores, keys, relayBroadcaster, app.RealtimeConfig(cfg.Realtime), cfg.App.BaseURL, logger)
	deps.Metrics = metricsHandler
	httpServer, err := app.SetupHttpServer(deps, cfg)
	if err != nil {
		return fmt.Errorf("failed to set up HTTP server: %w", err)
	}

	// Start the HTTP server
	g.Go(func() error {
		logger.Info("HTTP server listening", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	// gracefully shutdown HTTP server on context cancellation
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		// hijacked WebSocket connections are not closed by Shutdown
		deps.Hub.Close()
		if relay != nil {
			relay.Close()
		}
		return err
	})

	if cfg.Subscriber.Enabled {
		subscriber := realtime.NewSubscriber(deps.Hub, instanceID, logger)
		g.Go(func() error {
			logger.Info("Realtime subscriber started", slog.String("consumer", subscriber.ConsumerName()))
			err := subscriber.Run(gCtx, js, cfg.Nats.Stream, cfg.Nats.SubjectPrefix, cfg.Subscriber)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("realtime subscriber failed: %w", err)
			}
			logger.Info("Realtime subscriber stopped gracefully")
			return nil
		})
	}

	// Start the pprof server if enabled
	if cfg.PProf.Enabled {
		pprofServer := &http.Server{
			Addr: cfg.PProf.Addr,
		}
		g.Go(func() error {
			logger.Info("Pprof server listening", slog.String("addr", pprofServer.Addr))
			if err := pprofServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("pprof server failed: %w", err)
			}
			return nil
		})
		// gracefully shutdown pprof server on context cancellation
		g.Go(func() error {
			<-gCtx.Done()
			logger.Info("Shutting down pprof server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
			defer cancel()
			return pprofServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("errgroup encountered an error: %w", err)
	}
	return nil
}

// newStores connects the configured store driver. The returned func releases it.
func newStores(ctx context.Context, cfg pkgconfig.DatabaseConfig, logger *slog.Logger) (app.Stores, func(), error) {
	if cfg.Driver == pkgconfig.DriverMemory {
		logger.Warn("Using in-memory stores; data is lost on restart")
		return app.NewMemoryStores(), func() {}, nil
	}

	if cfg.Migrate {
		if err := store.Migrate(cfg.URL); err != nil {
			return app.Stores{}, nil, err
		}
		logger.Info("Database migrations applied")
	}
	dbPool, err := bootstrap.NewDbPool(ctx, cfg.URL, cfg.Timeout)
	if err != nil {
		return app.Stores{}, nil, err
	}
	logger.Info("Successfully connected to the database!")
	return app.NewPgStores(dbPool), dbPool.Close, nil
}

// newIdempotencyStore uses Redis when enabled so purchase keys are shared between instances.
func newIdempotencyStore(ctx context.Context, cfg pkgconfig.RedisConfig, logger *slog.Logger) (idempotency.Store, func(), error) {
	if !cfg.Enabled {
		return idempotency.NewMemoryStore(cfg.KeyTTL), func() {}, nil
	}
	rdb, err := bootstrap.NewRedisClient(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.Timeout)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Successfully connected to Redis!", slog.String("addr", cfg.Addr))
	return idempotency.NewRedisStore(rdb, cfg.KeyTTL), func() {
		if err := rdb.Close(); err != nil {
			logger.Error("Failed to close Redis client", slog.String("error", err.Error()))
		}
	}, nil
}
