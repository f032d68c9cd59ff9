package redis

import (
	"context"
	"errors"

	"github.com/Deekay69/aale-platform/internal/domain/recommendation"
	"github.com/Deekay69/aale-platform/pkg/logger"
)

// ProfileCache caches computed performance profiles with a short TTL.
// A miss or a Redis failure is never an error for the caller: the
// recommendation path recomputes the profile from the event store.
type ProfileCache struct {
	cache  *Cache
	logger *logger.Logger
}

// NewProfileCache creates a new ProfileCache.
func NewProfileCache(cache *Cache, log *logger.Logger) *ProfileCache {
	if log == nil {
		log = logger.Default()
	}
	return &ProfileCache{
		cache:  cache,
		logger: log.With(logger.Component("profile_cache")),
	}
}

// Get returns the cached profile for a student, if present.
func (p *ProfileCache) Get(ctx context.Context, studentID string) (recommendation.PerformanceProfile, bool) {
	var profile recommendation.PerformanceProfile
	err := p.cache.Get(ctx, ProfileKey(studentID), &profile)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			p.logger.Warn("profile cache read failed",
				logger.StudentID(studentID),
				logger.Err(err),
			)
		}
		return nil, false
	}
	return profile, true
}

// Set stores a profile with the standard TTL. Failures are logged and
// swallowed; caching is best effort.
func (p *ProfileCache) Set(ctx context.Context, studentID string, profile recommendation.PerformanceProfile) {
	if err := p.cache.Set(ctx, ProfileKey(studentID), profile, TTLProfileCache); err != nil {
		p.logger.Warn("profile cache write failed",
			logger.StudentID(studentID),
			logger.Err(err),
		)
	}
}

// Invalidate drops a student's cached profile. Called after a push lands
// new events so the next recommendation sees them immediately.
func (p *ProfileCache) Invalidate(ctx context.Context, studentID string) {
	if err := p.cache.Delete(ctx, ProfileKey(studentID)); err != nil {
		p.logger.Warn("profile cache invalidation failed",
			logger.StudentID(studentID),
			logger.Err(err),
		)
	}
}
