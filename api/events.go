package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/wordweave/services/event/cache"
	"example.com/wordweave/services/event/domain"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
	"example.com/wordweave/services/event/utils"
)

const projectionCacheTTL = 30 * time.Second

// PublishEventRequest is the producer-facing publish payload
type PublishEventRequest struct {
	AggregateID   string          `json:"aggregate_id" validate:"required"`
	AggregateType string          `json:"aggregate_type" validate:"required,aggregate_type"`
	EventType     string          `json:"event_type" validate:"required"`
	EventData     json.RawMessage `json:"event_data" validate:"required"`
	Metadata      json.RawMessage `json:"metadata"`
	CorrelationID string          `json:"correlation_id"`
	CausationID   string          `json:"causation_id"`
	Timestamp     int64           `json:"timestamp"`
}

// SubscribeRequest registers a consumer group's event type interest
type SubscribeRequest struct {
	ConsumerGroup string   `json:"consumer_group" validate:"required"`
	EventTypes    []string `json:"event_types" validate:"required,min=1"`
	CallbackURL   string   `json:"callback_url"`
}

func (s *Server) publishEvent(c *gin.Context) {
	var req PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body: " + err.Error()})
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	event, err := s.publisher.PublishDomainEvent(c.Request.Context(), eventstore.StoreEventParams{
		AggregateID:   req.AggregateID,
		AggregateType: req.AggregateType,
		EventType:     req.EventType,
		EventData:     req.EventData,
		Metadata:      req.Metadata,
		CorrelationID: req.CorrelationID,
		CausationID:   req.CausationID,
		Timestamp:     req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, eventstore.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
		log.Error().Err(err).Str("event_type", req.EventType).Msg("Failed to publish event")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to publish event"})
		return
	}

	// Stale projection, if any, is now invalid
	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Delete(c.Request.Context(), cache.ProjectionCacheKey(event.AggregateType, event.AggregateID)); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate cached projection")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id": event.EventID,
		"version":  event.Version,
		"success":  true,
		"message":  "event published",
	})
}

func (s *Server) getEvents(c *gin.Context) {
	aggregateType := c.Query("aggregate_type")
	eventType := c.Query("event_type")
	limit := intQuery(c, "limit", eventstore.MaxPageSize)
	offset := intQuery(c, "offset", 0)

	events, err := s.store.ListEvents(c.Request.Context(), aggregateType, eventType, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":  toEnvelopes(events),
		"count":   len(events),
		"success": true,
	})
}

func (s *Server) getEventsByAggregate(c *gin.Context) {
	aggregateType := c.Param("type")
	aggregateID := c.Param("id")
	fromVersion := intQuery(c, "from_version", 0)

	if !domain.IsValidAggregateType(aggregateType) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unknown aggregate type: " + aggregateType})
		return
	}

	events, err := s.store.GetEvents(c.Request.Context(), aggregateID, aggregateType, fromVersion)
	if err != nil {
		log.Error().Err(err).Str("aggregate_id", aggregateID).Msg("Failed to get aggregate events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to get events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":  toEnvelopes(events),
		"count":   len(events),
		"success": true,
	})
}

func (s *Server) getAggregate(c *gin.Context) {
	aggregateType := c.Param("type")
	aggregateID := c.Param("id")

	if !domain.IsValidAggregateType(aggregateType) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "unknown aggregate type: " + aggregateType})
		return
	}

	cacheKey := cache.ProjectionCacheKey(aggregateType, aggregateID)
	if s.cache != nil && s.cache.Enabled() {
		var cached domain.Projection
		if err := s.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil {
			c.JSON(http.StatusOK, gin.H{"aggregate": cached, "success": true})
			return
		}
	}

	projection, err := s.store.RebuildAggregate(c.Request.Context(), aggregateID, aggregateType)
	if err != nil {
		log.Error().Err(err).Str("aggregate_id", aggregateID).Msg("Failed to rebuild aggregate")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to rebuild aggregate"})
		return
	}
	if projection.Version == 0 {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "aggregate not found"})
		return
	}

	if s.cache != nil && s.cache.Enabled() {
		if err := s.cache.Set(c.Request.Context(), cacheKey, projection, projectionCacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to cache projection")
		}
	}

	c.JSON(http.StatusOK, gin.H{"aggregate": projection, "success": true})
}

func (s *Server) subscribeToEvents(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body: " + err.Error()})
		return
	}

	if err := utils.ValidateStruct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	subscription, err := s.subscriptions.Upsert(c.Request.Context(), req.ConsumerGroup, req.EventTypes, req.CallbackURL)
	if err != nil {
		log.Error().Err(err).Str("consumer_group", req.ConsumerGroup).Msg("Failed to register subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to register subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription_id": subscription.ID,
		"consumer_group":  subscription.ConsumerGroup,
		"success":         true,
		"message":         "subscription registered",
	})
}

func (s *Server) unsubscribe(c *gin.Context) {
	consumerGroup := c.Param("group")

	if err := s.subscriptions.Deactivate(c.Request.Context(), consumerGroup); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "subscription not found"})
			return
		}
		log.Error().Err(err).Str("consumer_group", consumerGroup).Msg("Failed to deactivate subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to deactivate subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "subscription deactivated"})
}

func (s *Server) listDeadLetters(c *gin.Context) {
	limit := intQuery(c, "limit", eventstore.MaxPageSize)
	offset := intQuery(c, "offset", 0)

	events, err := s.dlqRepo.List(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list dead letter events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "failed to list dead letter events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events":  events,
		"count":   len(events),
		"success": true,
	})
}

func (s *Server) retryDeadLetter(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid dead letter id"})
		return
	}

	if err := s.dlqOps.ManualRetry(c.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "dead letter event not found"})
			return
		}
		log.Error().Err(err).Uint64("id", id).Msg("Failed to retry dead letter event")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "retry failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "event republished"})
}

func (s *Server) purgeDeadLetters(c *gin.Context) {
	days := intQuery(c, "older_than_days", s.cfg.DeadLetter.PurgeAfterDays)
	if days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "older_than_days must be positive"})
		return
	}

	purged, err := s.dlqOps.PurgeOldEvents(c.Request.Context(), days)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge dead letter events")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "purge failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"purged": purged, "success": true})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func toEnvelopes(events []models.Event) []domain.Envelope {
	envelopes := make([]domain.Envelope, 0, len(events))
	for i := range events {
		envelopes = append(envelopes, domain.NewEnvelope(&events[i]))
	}
	return envelopes
}
