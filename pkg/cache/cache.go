package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations interface. Values are JSON encoded, so
// Get can decode into any destination that the stored value marshals from.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Nop is a Service that never stores anything.
type Nop struct{}

func (Nop) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (Nop) Get(context.Context, string, interface{}) error                { return ErrCacheMiss }
func (Nop) Delete(context.Context, ...string) error                       { return nil }
func (Nop) DeleteByPattern(context.Context, string) error                 { return nil }
func (Nop) Exists(context.Context, ...string) (bool, error)               { return false, nil }
func (Nop) Ping(context.Context) error                                    { return nil }
func (Nop) Close() error                                                  { return nil }
