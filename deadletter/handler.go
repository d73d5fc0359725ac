package deadletter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"example.com/wordweave/services/event/config"
	"example.com/wordweave/services/event/repository"
)

const retryBatchSize = 100

// RawPublisher re-publishes an already-serialized envelope to an exchange
// and routing key. Implemented by messaging.Publisher.
type RawPublisher interface {
	PublishRaw(ctx context.Context, exchange, routingKey string, payload []byte) error
}

// Handler retries dead-lettered deliveries a bounded number of times and
// ages out stale entries.
type Handler struct {
	repo      repository.DeadLetterRepository
	publisher RawPublisher

	retryInterval  time.Duration
	maxRetries     int
	retryWindow    time.Duration
	purgeAfterDays int
}

// NewHandler creates a new dead-letter handler
func NewHandler(repo repository.DeadLetterRepository, publisher RawPublisher, cfg config.DeadLetterConfig) *Handler {
	return &Handler{
		repo:           repo,
		publisher:      publisher,
		retryInterval:  cfg.RetryInterval,
		maxRetries:     cfg.MaxRetries,
		retryWindow:    cfg.RetryWindow,
		purgeAfterDays: cfg.PurgeAfterDays,
	}
}

// ProcessFailedEvents runs one retry cycle: every row under the retry cap
// whose failure is inside the retry window gets one re-publish attempt.
// Success deletes the row; failure increments its retry count and leaves it
// for the next cycle. Per-row errors never abort the cycle.
func (h *Handler) ProcessFailedEvents(ctx context.Context) error {
	events, err := h.repo.FindRetryable(ctx, h.maxRetries, h.retryWindow, retryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch retryable dead letters: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	log.Info().Int("count", len(events)).Msg("Retrying dead-lettered events")

	retried := 0
	for i := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		event := &events[i]

		if err := h.publisher.PublishRaw(ctx, event.ExchangeName, event.RoutingKey, event.EventPayload); err != nil {
			log.Warn().Err(err).
				Uint("dead_letter_id", event.ID).
				Str("exchange", event.ExchangeName).
				Int("retry_count", event.RetryCount).
				Msg("Dead-letter retry failed")
			if incErr := h.repo.IncrementRetryCount(ctx, event.ID); incErr != nil {
				log.Error().Err(incErr).Uint("dead_letter_id", event.ID).Msg("Failed to increment retry count")
			}
			continue
		}

		if err := h.repo.Delete(ctx, event.ID); err != nil {
			log.Error().Err(err).Uint("dead_letter_id", event.ID).Msg("Failed to delete retried dead letter")
			continue
		}
		retried++
	}

	log.Info().Int("retried", retried).Int("total", len(events)).Msg("Dead-letter retry cycle finished")
	return nil
}

// ManualRetry retries one dead letter on demand, regardless of its retry
// count. Success deletes the row; failure increments the count and returns
// the publish error.
func (h *Handler) ManualRetry(ctx context.Context, id uint) error {
	event, err := h.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := h.publisher.PublishRaw(ctx, event.ExchangeName, event.RoutingKey, event.EventPayload); err != nil {
		if incErr := h.repo.IncrementRetryCount(ctx, event.ID); incErr != nil {
			log.Error().Err(incErr).Uint("dead_letter_id", event.ID).Msg("Failed to increment retry count")
		}
		return fmt.Errorf("manual retry failed: %w", err)
	}

	if err := h.repo.Delete(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to delete retried dead letter: %w", err)
	}

	log.Info().Uint("dead_letter_id", id).Msg("Dead letter manually retried")
	return nil
}

// PurgeOldEvents deletes rows older than the given age regardless of retry
// count and returns the count removed. Very old entries are assumed
// permanently unrecoverable.
func (h *Handler) PurgeOldEvents(ctx context.Context, olderThanDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	removed, err := h.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	if removed > 0 {
		log.Info().Int64("removed", removed).Int("older_than_days", olderThanDays).Msg("Purged old dead letters")
	}
	return removed, nil
}

// Run schedules the periodic retry cycle and a daily purge, then blocks
// until the context is cancelled.
func (h *Handler) Run(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(h.retryInterval),
		gocron.NewTask(func() {
			if err := h.ProcessFailedEvents(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Dead-letter retry cycle failed")
			}
		}),
	)
	if err != nil {
		return err
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(func() {
			if _, err := h.PurgeOldEvents(ctx, h.purgeAfterDays); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Dead-letter purge failed")
			}
		}),
	)
	if err != nil {
		return err
	}

	scheduler.Start()
	log.Info().
		Dur("retry_interval", h.retryInterval).
		Int("max_retries", h.maxRetries).
		Msg("Dead-letter handler started")

	<-ctx.Done()
	return scheduler.Shutdown()
}
