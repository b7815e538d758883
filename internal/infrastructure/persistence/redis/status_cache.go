package redis

import (
	"context"
	"errors"

	"github.com/roboxon/student-app/internal/domain/report"
)

// StatusCache implements report.StatusCache on Redis. Entries carry no TTL;
// they live until a report change deletes them.
type StatusCache struct {
	cache *Cache
}

// NewStatusCache creates a StatusCache.
func NewStatusCache(cache *Cache) *StatusCache {
	return &StatusCache{cache: cache}
}

// StatusKey returns the cache key of a week's status, without the
// application prefix.
func StatusKey(key report.Key) string {
	return PrefixStatus + key.String()
}

// Get implements report.StatusCache.
func (s *StatusCache) Get(ctx context.Context, key report.Key) (report.StatusEntry, bool, error) {
	var entry report.StatusEntry
	err := s.cache.Get(ctx, StatusKey(key), &entry)
	switch {
	case err == nil:
		return entry, true, nil
	case errors.Is(err, ErrCacheMiss):
		return report.StatusEntry{}, false, nil
	default:
		return report.StatusEntry{}, false, err
	}
}

// Set implements report.StatusCache.
func (s *StatusCache) Set(ctx context.Context, key report.Key, entry report.StatusEntry) error {
	return s.cache.Set(ctx, StatusKey(key), entry, 0)
}

// Delete implements report.StatusCache.
func (s *StatusCache) Delete(ctx context.Context, key report.Key) error {
	return s.cache.Delete(ctx, StatusKey(key))
}

// InvalidateStudent drops every cached week of a student.
func (s *StatusCache) InvalidateStudent(ctx context.Context, studentID string) error {
	return s.cache.DeleteByPattern(ctx, PrefixStatus+studentID+"/*")
}
