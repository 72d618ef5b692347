package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck probes a connection pool.
func PingCheck(p Pinger) Check {
	return func(ctx context.Context) error {
		return errors.Wrap(p.Ping(ctx), "ping")
	}
}

// RedisCheck probes a redis server with PING.
func RedisCheck(c redis.Cmdable) Check {
	return func(ctx context.Context) error {
		return errors.Wrap(c.Ping(ctx).Err(), "redis ping")
	}
}

// GoroutineCheck fails when the process runs more than limit goroutines.
func GoroutineCheck(limit int) Check {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}
