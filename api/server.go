package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog/log"

	"example.com/wordweave/services/event/cache"
	"example.com/wordweave/services/event/config"
	"example.com/wordweave/services/event/eventstore"
	"example.com/wordweave/services/event/models"
	"example.com/wordweave/services/event/repository"
)

// EventPublisher is the producer-facing publish operation
type EventPublisher interface {
	PublishDomainEvent(ctx context.Context, params eventstore.StoreEventParams) (*models.Event, error)
}

// DeadLetterOps exposes the on-demand dead-letter operations
type DeadLetterOps interface {
	ManualRetry(ctx context.Context, id uint) error
	PurgeOldEvents(ctx context.Context, olderThanDays int) (int64, error)
}

// Server is the HTTP server for the event API
type Server struct {
	cfg           config.Config
	router        *gin.Engine
	httpServer    *http.Server
	store         eventstore.EventStore
	publisher     EventPublisher
	subscriptions repository.SubscriptionRepository
	dlqRepo       repository.DeadLetterRepository
	dlqOps        DeadLetterOps
	cache         *cache.RedisCache
}

// NewServer creates a new API server
func NewServer(
	cfg config.Config,
	store eventstore.EventStore,
	publisher EventPublisher,
	subscriptions repository.SubscriptionRepository,
	dlqRepo repository.DeadLetterRepository,
	dlqOps DeadLetterOps,
	redisCache *cache.RedisCache,
	nrApp *newrelic.Application,
) *Server {
	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		cfg:           cfg,
		router:        gin.New(),
		store:         store,
		publisher:     publisher,
		subscriptions: subscriptions,
		dlqRepo:       dlqRepo,
		dlqOps:        dlqOps,
		cache:         redisCache,
	}

	server.setupMiddleware(nrApp)
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware(nrApp *newrelic.Application) {
	s.router.Use(requestLogger())
	if s.cfg.CorsEnabled {
		s.router.Use(corsMiddleware())
	}
	s.router.Use(gin.Recovery())
	if nrApp != nil {
		s.router.Use(nrgin.Middleware(nrApp))
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	v1 := s.router.Group("/api/v1")

	eventRoutes := v1.Group("/events")
	{
		eventRoutes.POST("", s.publishEvent)
		eventRoutes.GET("", s.getEvents)
	}

	aggregateRoutes := v1.Group("/aggregates")
	{
		aggregateRoutes.GET("/:type/:id/events", s.getEventsByAggregate)
		aggregateRoutes.GET("/:type/:id", s.getAggregate)
	}

	v1.POST("/subscriptions", s.subscribeToEvents)
	v1.DELETE("/subscriptions/:group", s.unsubscribe)

	dlqRoutes := v1.Group("/deadletters")
	{
		dlqRoutes.GET("", s.listDeadLetters)
		dlqRoutes.POST("/:id/retry", s.retryDeadLetter)
		dlqRoutes.DELETE("", s.purgeDeadLetters)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTPServerAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTPServerTimeout,
		WriteTimeout: s.cfg.HTTPServerTimeout,
	}

	log.Info().Msgf("HTTP server starting on %s", s.cfg.HTTPServerAddress)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
