package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"example.com/wordweave/services/event/models"
)

// SubscriptionRepository defines persistence for consumer group subscriptions
type SubscriptionRepository interface {
	// Upsert creates or updates the subscription for a consumer group and
	// reactivates it if it was deactivated
	Upsert(ctx context.Context, consumerGroup string, eventTypes []string, callbackURL string) (*models.EventSubscription, error)
	FindByConsumerGroup(ctx context.Context, consumerGroup string) (*models.EventSubscription, error)
	// ActiveSubscriptions returns every active subscription; the consumer
	// replays these at startup to rebuild broker bindings
	ActiveSubscriptions(ctx context.Context) ([]models.EventSubscription, error)
	Deactivate(ctx context.Context, consumerGroup string) error
}

// subscriptionRepository implements SubscriptionRepository
type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// Upsert creates or updates a consumer group's subscription
func (r *subscriptionRepository) Upsert(ctx context.Context, consumerGroup string, eventTypes []string, callbackURL string) (*models.EventSubscription, error) {
	encoded, err := json.Marshal(eventTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event types: %w", err)
	}

	var subscription models.EventSubscription
	err = r.db.WithContext(ctx).
		Where("consumer_group = ?", consumerGroup).
		First(&subscription).Error
	if err != nil {
		if !IsRecordNotFoundError(err) {
			return nil, err
		}
		subscription = models.EventSubscription{
			ConsumerGroup: consumerGroup,
			EventTypes:    encoded,
			CallbackURL:   callbackURL,
			Status:        models.SubscriptionActive,
		}
		if err := r.db.WithContext(ctx).Create(&subscription).Error; err != nil {
			return nil, err
		}
		return &subscription, nil
	}

	subscription.EventTypes = encoded
	subscription.CallbackURL = callbackURL
	subscription.Status = models.SubscriptionActive
	if err := r.db.WithContext(ctx).Save(&subscription).Error; err != nil {
		return nil, err
	}
	return &subscription, nil
}

// FindByConsumerGroup finds a subscription by consumer group
func (r *subscriptionRepository) FindByConsumerGroup(ctx context.Context, consumerGroup string) (*models.EventSubscription, error) {
	var subscription models.EventSubscription
	err := r.db.WithContext(ctx).
		Where("consumer_group = ?", consumerGroup).
		First(&subscription).Error
	if err != nil {
		if IsRecordNotFoundError(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &subscription, nil
}

// ActiveSubscriptions returns all active subscriptions
func (r *subscriptionRepository) ActiveSubscriptions(ctx context.Context) ([]models.EventSubscription, error) {
	var subscriptions []models.EventSubscription
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SubscriptionActive).
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

// Deactivate marks a subscription inactive without deleting its history
func (r *subscriptionRepository) Deactivate(ctx context.Context, consumerGroup string) error {
	result := r.db.WithContext(ctx).
		Model(&models.EventSubscription{}).
		Where("consumer_group = ?", consumerGroup).
		Update("status", models.SubscriptionInactive)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecodeEventTypes decodes the stored ordered list of event types
func DecodeEventTypes(subscription *models.EventSubscription) ([]string, error) {
	var eventTypes []string
	if err := json.Unmarshal(subscription.EventTypes, &eventTypes); err != nil {
		return nil, fmt.Errorf("failed to decode event types for %s: %w", subscription.ConsumerGroup, err)
	}
	return eventTypes, nil
}
