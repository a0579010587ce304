package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service is the key/value store behind market snapshots and payment claims.
// Values are JSON encoded, except strings and byte slices which are stored verbatim.
type Service interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	// SetIfAbsent stores value only when key holds nothing live and reports
	// whether this caller stored it. Concurrent callers see exactly one winner.
	SetIfAbsent(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Close() error
}
