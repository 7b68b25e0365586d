// Package coordinator assembles one server's client, event channel,
// session synchronizer, and discovery cache, and routes events between
// them.
package coordinator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"jellysync/internal/discovery"
	"jellysync/internal/events"
	"jellysync/internal/jellyfin"
	"jellysync/internal/models"
	"jellysync/internal/sessions"
)

// Coordinator owns the synchronization stack for a single server.
type Coordinator struct {
	server models.Server
	log    *zap.Logger

	Client    *jellyfin.Client
	Events    *events.Manager
	Sessions  *sessions.Synchronizer
	Discovery *discovery.Cache

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

type Option func(*options)

type options struct {
	clientOpts  []jellyfin.Option
	eventOpts   []events.Option
	sessionOpts []sessions.Option
	cacheOpts   []discovery.Option
}

func WithClientOptions(opts ...jellyfin.Option) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

func WithEventOptions(opts ...events.Option) Option {
	return func(o *options) { o.eventOpts = append(o.eventOpts, opts...) }
}

func WithSessionOptions(opts ...sessions.Option) Option {
	return func(o *options) { o.sessionOpts = append(o.sessionOpts, opts...) }
}

func WithCacheOptions(opts ...discovery.Option) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

// New wires the components for one server. deviceID identifies this
// installation on both the HTTP and socket channels.
func New(srv models.Server, deviceID string, log *zap.Logger, opts ...Option) *Coordinator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log = log.With(zap.String("server", srv.Name))
	client := jellyfin.New(srv, deviceID, log, o.clientOpts...)
	mgr := events.New(srv.URL, srv.Token, deviceID, log, o.eventOpts...)
	syncer := sessions.New(client, mgr, log, o.sessionOpts...)
	cache := discovery.NewCache(srv.ID, client, o.cacheOpts...)

	c := &Coordinator{
		server:    srv,
		log:       log,
		Client:    client,
		Events:    mgr,
		Sessions:  syncer,
		Discovery: cache,
	}
	c.wire()
	return c
}

// wire routes push events into the session map and cache. Session
// updates only nudge the poll so the authoritative list stays the single
// source of truth; user-scoped events remove one cache entry; library
// changes flush the cache because catalog-wide feeds depend on it.
func (c *Coordinator) wire() {
	c.Events.On(models.EventSessions, func(models.StreamEvent) {
		c.Sessions.Nudge()
	})
	c.Events.On(models.EventPlaybackStart, func(ev models.StreamEvent) {
		c.Sessions.Nudge()
	})
	c.Events.On(models.EventPlaybackStopped, func(ev models.StreamEvent) {
		c.Sessions.Nudge()
		if ev.UserID != "" {
			c.Discovery.InvalidateUser(ev.UserID)
		}
	})
	c.Events.On(models.EventUserDataChanged, func(ev models.StreamEvent) {
		if ev.UserID != "" {
			c.Discovery.InvalidateUser(ev.UserID)
		}
	})
	c.Events.On(models.EventLibraryChanged, func(models.StreamEvent) {
		c.Discovery.InvalidateAll()
	})
}

func (c *Coordinator) Server() models.Server { return c.server }

// Start validates the credential against the server and launches the
// background loops. An authentication failure is returned as such so the
// host can prompt for new credentials instead of blindly retrying; an
// unreachable event channel does not fail startup, the synchronizer just
// polls at its fallback interval until the socket recovers. A cancelled
// Start leaves nothing running.
func (c *Coordinator) Start(ctx context.Context) error {
	info, err := c.Client.Info(ctx)
	if err != nil {
		return err
	}
	c.server.Version = info.Version
	if c.server.ID == "" {
		c.server.ID = info.ID
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.Sessions.Start(runCtx)
	c.Events.Start(runCtx)
	c.started = true

	c.log.Info("coordinator started",
		zap.String("server_id", c.server.ID),
		zap.String("version", c.server.Version))
	return nil
}

// Stop tears down the background loops and releases the client transport.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.Events.Stop()
	c.Sessions.Stop()
	c.cancel()
	c.Client.Close()
	c.started = false
}
