package cmd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/wordweave/services/event/deadletter"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/messaging"
	"example.com/wordweave/services/event/repository"
)

var (
	retryEventID uint
	purgeDays    int
)

var deadLetterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Operate on dead lettered events",
}

var deadLetterRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Republish a dead lettered event regardless of its retry count",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}

		conn := messaging.NewConnection(cfg.RabbitMQ)
		if err := conn.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
		}
		defer conn.Close()

		store := eventstore.NewGormEventStore(db)
		dlqRepo := repository.NewDeadLetterRepository(db)

		publisher := messaging.NewPublisher(conn, store, dlqRepo)
		if err := publisher.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to open publisher channel")
		}
		defer publisher.Close()

		handler := deadletter.NewHandler(dlqRepo, publisher, cfg.DeadLetter)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := handler.ManualRetry(ctx, retryEventID); err != nil {
			log.Fatal().Err(err).Uint("id", retryEventID).Msg("Retry failed")
		}

		log.Info().Uint("id", retryEventID).Msg("Event republished")
	},
}

var deadLetterPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead lettered events older than a cutoff",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openDatabase()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}

		dlqRepo := repository.NewDeadLetterRepository(db)
		handler := deadletter.NewHandler(dlqRepo, nil, cfg.DeadLetter)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		purged, err := handler.PurgeOldEvents(ctx, purgeDays)
		if err != nil {
			log.Fatal().Err(err).Msg("Purge failed")
		}

		log.Info().Int64("purged", purged).Int("older_than_days", purgeDays).Msg("Purged dead lettered events")
	},
}

func init() {
	deadLetterRetryCmd.Flags().UintVar(&retryEventID, "id", 0, "dead letter event id")
	deadLetterRetryCmd.MarkFlagRequired("id")

	deadLetterPurgeCmd.Flags().IntVar(&purgeDays, "days", 7, "delete events older than this many days")

	deadLetterCmd.AddCommand(deadLetterRetryCmd)
	deadLetterCmd.AddCommand(deadLetterPurgeCmd)
	rootCmd.AddCommand(deadLetterCmd)
}
