package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/wordweave/services/event/cascade"
	"example.com/wordweave/services/event/clients"
	"example.com/wordweave/services/event/deadletter"
	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/messaging"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the event consumer worker",
	Run:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	log.Info().Str("consumer_group", cfg.Consumer.Group).Msg("Starting event worker")

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

	conn := messaging.NewConnection(cfg.RabbitMQ)
	if err := conn.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}

	publisher := messaging.NewPublisher(conn, store, dlqRepo)
	if err := publisher.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open publisher channel")
	}

	consumer := messaging.NewConsumer(conn, dlqRepo, cfg.Consumer.PrefetchCount, cfg.Consumer.WorkerCount, cfg.Consumer.QueueSize, cfg.Consumer.GracePeriod)
	if err := consumer.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open consumer channel")
	}

	pool := clients.NewPool(cfg.Services)
	orchestrator := cascade.NewOrchestrator(pool, cfg.Services.CallTimeout)

	dlqHandler := deadletter.NewHandler(dlqRepo, publisher, cfg.DeadLetter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker's own group always exists before bindings are rebuilt
	if _, err := subscriptionRepo.Upsert(ctx, cfg.Consumer.Group, cfg.Consumer.EventTypes, ""); err != nil {
		log.Fatal().Err(err).Msg("Failed to register worker subscription")
	}

	subscriptions, err := subscriptionRepo.ActiveSubscriptions(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load active subscriptions")
	}

	for i := range subscriptions {
		subscription := subscriptions[i]
		eventTypes, err := repository.DecodeEventTypes(&subscription)
		if err != nil {
			log.Error().Err(err).Str("consumer_group", subscription.ConsumerGroup).Msg("Skipping subscription with bad event types")
			continue
		}

		handler := handlerForSubscription(&subscription, orchestrator)
		if err := consumer.SubscribeToEvents(ctx, subscription.ConsumerGroup, eventTypes, handler); err != nil {
			log.Fatal().Err(err).Str("consumer_group", subscription.ConsumerGroup).Msg("Failed to subscribe")
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.Monitor(gctx, cfg.RabbitMQ.ReconnectInterval)
	})

	g.Go(func() error {
		return dlqHandler.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down worker...")

		consumer.Shutdown()
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close publisher")
		}
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Worker exited with error")
	}

	log.Info().Msg("Worker exited properly")
}

// handlerForSubscription routes deliveries for this service's own group to
// the cascade orchestrator. External groups with a callback URL get their
// events forwarded over HTTP; a failed forward dead letters the event.
func handlerForSubscription(subscription *models.EventSubscription, orchestrator *cascade.Orchestrator) messaging.HandlerFunc {
	if subscription.ConsumerGroup == cfg.Consumer.Group {
		return orchestrator.Handle
	}

	if subscription.CallbackURL != "" {
		callbackURL := subscription.CallbackURL
		client := &http.Client{Timeout: cfg.Services.CallTimeout}
		return func(ctx context.Context, env domain.Envelope) error {
			return forwardToCallback(ctx, client, callbackURL, env)
		}
	}

	return func(ctx context.Context, env domain.Envelope) error {
		log.Info().
			Str("consumer_group", subscription.ConsumerGroup).
			Str("event_type", env.EventType).
			Msg("Consumed event with no callback configured")
		return nil
	}
}

func forwardToCallback(ctx context.Context, client *http.Client, callbackURL string, env domain.Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", env.EventID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("callback %s failed: %w", callbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("callback %s returned status %d", callbackURL, resp.StatusCode)
	}
	return nil
}
