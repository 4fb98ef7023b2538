// Package container provides dependency injection for all singleton services
package container

import (
	"errors"
	"io"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/persistence/local"
)

// Dependencies are the opened stores the services are wired over.
type Dependencies struct {
	// PersistentMedium survives restarts and holds identity, profiles and logs.
	PersistentMedium tracking.Medium
	// SessionMedium lives for one process and holds the session keys.
	SessionMedium tracking.Medium
	// Remote is nil when no remote backend is configured.
	Remote tracking.RemoteStore

	Keys          tracking.Keys
	BeaconURL     string
	BeaconTimeout time.Duration
	Now           services.Clock
	Closers       []io.Closer
}

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Tracking Services
	IdentityService    *services.IdentityService
	SinkService        *services.SinkService
	ProfileService     *services.ProfileService
	AggregationService *services.AggregationService
	BeaconService      *services.BeaconService

	// Infrastructure Dependencies
	Logger      *logging.ChanneledLogger
	EventStore  *local.EventStore
	Remote      tracking.RemoteStore
	Broadcaster *messaging.FeedBroadcaster
	Keys        tracking.Keys

	closers []io.Closer
}

// NewContainer creates and wires all singleton services
func NewContainer(logger *logging.ChanneledLogger, deps Dependencies) *Container {
	eventStore := local.NewEventStore(deps.PersistentMedium, deps.Keys, logger)
	identity := services.NewIdentityService(deps.PersistentMedium, deps.SessionMedium, deps.Keys, logger, deps.Now)
	sink := services.NewSinkService(services.SinkConfig{
		Remote:   deps.Remote,
		Local:    eventStore,
		Identity: identity,
		Logger:   logger,
		Now:      deps.Now,
	})
	beacon := services.NewBeaconService(deps.BeaconURL, deps.BeaconTimeout, logger)

	c := &Container{
		IdentityService: identity,
		SinkService:     sink,
		ProfileService: services.NewProfileService(services.ProfileConfig{
			Identity:      identity,
			Sink:          sink,
			SessionMedium: deps.SessionMedium,
			Keys:          deps.Keys,
			Beacon:        beacon,
			Logger:        logger,
			Now:           deps.Now,
		}),
		AggregationService: services.NewAggregationService(sink, logger, services.AggregationConfig{Now: deps.Now}),
		BeaconService:      beacon,

		Logger:      logger,
		EventStore:  eventStore,
		Remote:      deps.Remote,
		Broadcaster: messaging.NewFeedBroadcaster(logger),
		Keys:        deps.Keys,
		closers:     deps.Closers,
	}
	if deps.Remote != nil {
		c.closers = append(c.closers, deps.Remote)
	}
	return c
}

// Close releases every store opened for the container.
func (c *Container) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
