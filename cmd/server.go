package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/wordweave/services/event/api"
	"example.com/wordweave/services/event/cache"
	"example.com/wordweave/services/event/deadletter"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/messaging"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
	"example.com/wordweave/services/event/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the event API server",
	Run:   runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) {
	log.Info().Str("environment", cfg.Environment).Msg("Starting event service")

	db, err := openDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if cfg.DB.EnableMigrations {
		if err := models.SetupModels(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate database")
		}
	}

	store := eventstore.NewGormEventStore(db)
	dlqRepo := repository.NewDeadLetterRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// Broker connectivity is not required to serve reads. Failed publishes
	// land in the dead letter table and the retry loop picks them up once
	// the broker is back.
	conn := messaging.NewConnection(cfg.RabbitMQ)
	if err := conn.Connect(); err != nil {
		log.Warn().Err(err).Msg("RabbitMQ unavailable, publishes will be dead lettered")
	}

	publisher := messaging.NewPublisher(conn, store, dlqRepo)
	if !conn.IsClosed() {
		if err := publisher.Connect(); err != nil {
			log.Warn().Err(err).Msg("Failed to open publisher channel")
		}
	}

	dlqHandler := deadletter.NewHandler(dlqRepo, publisher, cfg.DeadLetter)

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Redis unavailable, projection cache disabled")
	}

	nrApp, err := telemetry.InitNewRelic(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize New Relic")
	}

	server := api.NewServer(cfg, store, publisher, subscriptionRepo, dlqRepo, dlqHandler, redisCache, nrApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})

	// Keeps the broker connection alive; the publisher re-opens its channel
	// lazily once the connection is back.
	g.Go(func() error {
		return conn.Monitor(gctx, cfg.RabbitMQ.ReconnectInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close publisher")
		}
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}

	log.Info().Msg("Server exited properly")
}
