package db

import (
	"context"
	"time"
)

// Store is the key-value facade backing the embedding budget.
// Consumers depend on the narrow sub-interfaces.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides expiring integer counters.
type KVStore interface {
	// Get returns the decimal value of key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// AddWithTTL increments key by val, creating it at zero. The ttl applies
	// only when the key has no expiry yet, so repeated adds never extend it.
	AddWithTTL(ctx context.Context, key string, val int64, ttl time.Duration) error
}

// Drivers accepted by database.driver.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)
