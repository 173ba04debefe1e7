// Package cachemanager provides a TTL'd in-memory key/value store.
// The engine uses it to back the runtime store/retrieve/delete frames
// that scripting runtimes use to stash values across game sessions.
package cachemanager

import (
	"context"
	"time"
)

type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	DeletePrefix(ctx context.Context, prefix K) error
	Flush(ctx context.Context) error
}
