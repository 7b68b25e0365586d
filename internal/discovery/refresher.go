package discovery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Refresher keeps one user's discovery entry warm on its own interval,
// so the first read after a TTL expiry does not pay the aggregation
// latency. Each (server, user) pair gets an independent refresher.
type Refresher struct {
	cache    *Cache
	userID   string
	interval time.Duration
	log      *zap.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewRefresher(cache *Cache, userID string, interval time.Duration, log *zap.Logger) *Refresher {
	return &Refresher{
		cache:    cache,
		userID:   userID,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

func (r *Refresher) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		ctx, r.cancel = context.WithCancel(ctx)
		go r.run(ctx)
	})
}

func (r *Refresher) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.cache.ForceRefresh(ctx, r.userID); err != nil && ctx.Err() == nil {
				r.log.Debug("discovery refresh failed",
					zap.String("user_id", r.userID), zap.Error(err))
			}
		}
	}
}
