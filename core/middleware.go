package core

import (
	"context"
	"time"
)

// LookupCache is the middleware hook for caching hash-lookup results. The
// facade reads lookups through the installed cache and invalidates it on
// every write that can change a lookup's answer. Implementations live in
// the middleware package.
type LookupCache interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	// Invalidate drops every cached entry.
	Invalidate(ctx context.Context) error
	Close() error
}
