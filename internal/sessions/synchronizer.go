// Package sessions keeps a current map of a server's live playback
// sessions, keyed by device id. Polling stays the single source of truth;
// push events only accelerate the next poll.
package sessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"jellysync/internal/models"
)

const (
	DefaultRelaxedInterval  = 60 * time.Second
	DefaultFallbackInterval = 10 * time.Second
)

// warnStreak is the consecutive-failure count surfaced distinctly from a
// single transient failure.
const warnStreak = 3

// Lister is the slice of the API client the synchronizer needs.
type Lister interface {
	Sessions(ctx context.Context) ([]models.Session, error)
}

// StreamState reports whether the push channel is delivering events; the
// refresh interval relaxes while it is.
type StreamState interface {
	Connected() bool
}

type Synchronizer struct {
	client   Lister
	events   StreamState
	log      *zap.Logger
	relaxed  time.Duration
	fallback time.Duration

	mu       sync.RWMutex
	sessions map[string]models.Session
	failures int

	subMu       sync.Mutex
	subscribers map[chan []models.Session]struct{}

	nudge      chan struct{}
	pollNotify chan struct{}

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Synchronizer)

// WithIntervals overrides the relaxed (push connected) and fallback
// (polling only) refresh intervals.
func WithIntervals(relaxed, fallback time.Duration) Option {
	return func(s *Synchronizer) {
		s.relaxed = relaxed
		s.fallback = fallback
	}
}

func New(client Lister, events StreamState, log *zap.Logger, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		client:      client,
		events:      events,
		log:         log,
		relaxed:     DefaultRelaxedInterval,
		fallback:    DefaultFallbackInterval,
		sessions:    make(map[string]models.Session),
		subscribers: make(map[chan []models.Session]struct{}),
		nudge:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval is the effective refresh period right now: relaxed while the
// event channel covers changes, fallback otherwise.
func (s *Synchronizer) Interval() time.Duration {
	if s.events != nil && s.events.Connected() {
		return s.relaxed
	}
	return s.fallback
}

// Nudge requests an out-of-cycle refresh. It never blocks; a refresh
// already pending absorbs the request.
func (s *Synchronizer) Nudge() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.run(ctx)
	})
}

func (s *Synchronizer) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.done)

	s.refresh(ctx)
	timer := time.NewTimer(s.Interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.nudge:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		s.refresh(ctx)
		timer.Reset(s.Interval())
	}
}

func (s *Synchronizer) refresh(ctx context.Context) {
	err := s.Refresh(ctx)
	if err != nil && ctx.Err() == nil {
		s.log.Debug("session refresh failed", zap.Error(err))
	}
	if s.pollNotify != nil {
		select {
		case s.pollNotify <- struct{}{}:
		default:
		}
	}
}

// Refresh reconciles the server's session list into the device-id map:
// reported sessions are inserted or updated, devices no longer reported
// are removed. Applying the same response twice is a no-op. On failure
// the previous map is kept untouched.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	listed, err := s.client.Sessions(ctx)
	if err != nil {
		s.mu.Lock()
		s.failures++
		streak := s.failures
		s.mu.Unlock()
		if streak == warnStreak {
			s.log.Warn("session refresh failing repeatedly, keeping last known state",
				zap.Int("consecutive_failures", streak), zap.Error(err))
		}
		return err
	}

	next := make(map[string]models.Session, len(listed))
	for _, sess := range listed {
		next[sess.DeviceID] = sess
	}

	s.mu.Lock()
	s.sessions = next
	s.failures = 0
	s.mu.Unlock()

	s.publish(s.Snapshot())
	return nil
}

// FailureStreak reports how many refreshes in a row have failed.
func (s *Synchronizer) FailureStreak() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failures
}

// Get returns the session for a device id.
func (s *Synchronizer) Get(deviceID string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[deviceID]
	return sess, ok
}

// Snapshot returns all current sessions.
func (s *Synchronizer) Snapshot() []models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess)
	}
	return result
}

// Subscribe returns a channel receiving a snapshot after each successful
// refresh. Slow subscribers miss intermediate snapshots rather than
// blocking the refresh loop.
func (s *Synchronizer) Subscribe() chan []models.Session {
	ch := make(chan []models.Session, 1)
	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Synchronizer) Unsubscribe(ch chan []models.Session) {
	s.subMu.Lock()
	_, exists := s.subscribers[ch]
	delete(s.subscribers, ch)
	s.subMu.Unlock()
	if exists {
		close(ch)
	}
}

func (s *Synchronizer) publish(snapshot []models.Session) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
