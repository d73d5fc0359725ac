package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"example.com/wordweave/services/event/models"
)

// DeadLetterRepository defines persistence for failed deliveries
type DeadLetterRepository interface {
	Create(ctx context.Context, event *models.DeadLetterEvent) error
	FindByID(ctx context.Context, id uint) (*models.DeadLetterEvent, error)
	// FindRetryable returns rows still under the retry cap whose failure is
	// recent enough to be worth retrying automatically
	FindRetryable(ctx context.Context, maxRetries int, window time.Duration, limit int) ([]models.DeadLetterEvent, error)
	List(ctx context.Context, limit, offset int) ([]models.DeadLetterEvent, error)
	IncrementRetryCount(ctx context.Context, id uint) error
	Delete(ctx context.Context, id uint) error
	// DeleteOlderThan purges rows by age regardless of retry count and
	// returns the number removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// deadLetterRepository implements DeadLetterRepository
type deadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository creates a new dead-letter repository
func NewDeadLetterRepository(db *gorm.DB) DeadLetterRepository {
	return &deadLetterRepository{db: db}
}

// Create inserts a new dead-letter row
func (r *deadLetterRepository) Create(ctx context.Context, event *models.DeadLetterEvent) error {
	if event.FailedAt.IsZero() {
		event.FailedAt = time.Now()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindByID finds a dead-letter row by ID
func (r *deadLetterRepository) FindByID(ctx context.Context, id uint) (*models.DeadLetterEvent, error) {
	var event models.DeadLetterEvent
	err := r.db.WithContext(ctx).First(&event, id).Error
	if err != nil {
		if IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

// FindRetryable returns rows eligible for an automatic retry cycle
func (r *deadLetterRepository) FindRetryable(ctx context.Context, maxRetries int, window time.Duration, limit int) ([]models.DeadLetterEvent, error) {
	var events []models.DeadLetterEvent
	err := r.db.WithContext(ctx).
		Where("retry_count < ? AND failed_at > ?", maxRetries, time.Now().Add(-window)).
		Order("failed_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// List returns a page of dead-letter rows, most recent failures first
func (r *deadLetterRepository) List(ctx context.Context, limit, offset int) ([]models.DeadLetterEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var events []models.DeadLetterEvent
	err := r.db.WithContext(ctx).
		Order("failed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// IncrementRetryCount bumps the retry counter after a failed retry
func (r *deadLetterRepository) IncrementRetryCount(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&models.DeadLetterEvent{}).
		Where("id = ?", id).
		Update("retry_count", gorm.Expr("retry_count + 1")).Error
}

// Delete removes a dead-letter row after a successful retry
func (r *deadLetterRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.DeadLetterEvent{}, id).Error
}

// DeleteOlderThan purges rows failed before the cutoff
func (r *deadLetterRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("failed_at < ?", cutoff).
		Delete(&models.DeadLetterEvent{})
	return result.RowsAffected, result.Error
}
