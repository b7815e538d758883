// Package curriculum serves the student's release document from the local
// cache and falls back to the portal on a miss.
package curriculum

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/roboxon/student-app/internal/domain/curriculum"
	"github.com/roboxon/student-app/internal/domain/shared"
	"github.com/roboxon/student-app/internal/domain/student"
	"github.com/roboxon/student-app/pkg/logger"
	"github.com/roboxon/student-app/pkg/metrics"
)

// Cache returns releases without refetching a document that was already
// cached for the same id. Releases never change once issued, so there is
// no expiry.
type Cache struct {
	store     curriculum.Store
	gateway   curriculum.Gateway
	publisher shared.EventPublisher
	logger    *logger.Logger
	group     singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithPublisher announces every refreshed release.
func WithPublisher(p shared.EventPublisher) Option {
	return func(c *Cache) { c.publisher = p }
}

// NewCache creates a release cache. gateway may be nil when offline; only
// cached releases are served then.
func NewCache(store curriculum.Store, gateway curriculum.Gateway, opts ...Option) *Cache {
	c := &Cache{store: store, gateway: gateway, logger: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("curriculum_cache"))
	return c
}

// IsValid reports whether a readable cached envelope exists for releaseID
// and carries that same id.
func (c *Cache) IsValid(ctx context.Context, releaseID int64) bool {
	_, ok := c.cached(ctx, releaseID)
	return ok
}

func (c *Cache) cached(ctx context.Context, releaseID int64) (*curriculum.Release, bool) {
	env, err := c.store.Load(ctx, releaseID)
	if err != nil {
		if !shared.IsNotFound(err) {
			c.logger.Warn("release cache unreadable", logger.ReleaseID(releaseID), logger.Err(err))
		}
		return nil, false
	}
	if env.Data == nil || env.Data.ID != releaseID {
		return nil, false
	}
	return env.Data, true
}

// Get returns the release assigned to p. Unless forceRefresh is set, a
// valid cached copy is returned without a remote call; otherwise the
// release is fetched, persisted and returned. A non-success envelope
// fails with a *shared.RemoteError carrying its status and message.
func (c *Cache) Get(ctx context.Context, p student.Profile, forceRefresh bool) (*curriculum.Release, error) {
	if !p.HasRelease() {
		return nil, shared.ErrNoRelease
	}
	releaseID := p.ReleaseID

	if !forceRefresh {
		if release, ok := c.cached(ctx, releaseID); ok {
			metrics.RecordReleaseCacheLookup("hit")
			return release, nil
		}
		metrics.RecordReleaseCacheLookup("miss")
	} else {
		metrics.RecordReleaseCacheLookup("forced")
	}

	v, err, dup := c.group.Do(strconv.FormatInt(releaseID, 10), func() (any, error) {
		return c.refresh(ctx, releaseID)
	})
	if err != nil {
		return nil, err
	}
	if dup {
		c.logger.Debug("release fetch shared", logger.ReleaseID(releaseID))
	}
	return v.(*curriculum.Release), nil
}

func (c *Cache) refresh(ctx context.Context, releaseID int64) (*curriculum.Release, error) {
	if c.gateway == nil {
		return nil, shared.ErrReleaseNotFound
	}
	env, err := c.gateway.FetchRelease(ctx, releaseID)
	if err != nil {
		return nil, err
	}
	if !env.OK() {
		return nil, &shared.RemoteError{
			Operation:  "fetch_release",
			StatusCode: env.StatusCode,
			Message:    env.Message,
		}
	}

	if err := c.store.Save(ctx, releaseID, env); err != nil {
		// The fetched release is still returned; the next Get refetches.
		c.logger.Error("persist release failed", logger.ReleaseID(releaseID), logger.Err(err))
	} else {
		c.logger.Info("release cached", logger.ReleaseID(releaseID), logger.Int("lessons", env.Data.LessonCount()))
	}

	if c.publisher != nil {
		event := shared.ReleaseRefreshedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventReleaseRefreshed, strconv.FormatInt(releaseID, 10)),
			ReleaseID: releaseID,
		}
		if err := c.publisher.Publish(event); err != nil {
			c.logger.Warn("publish release refresh failed", logger.ReleaseID(releaseID), logger.Err(err))
		}
	}
	return env.Data, nil
}
