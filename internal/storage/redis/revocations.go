// Package redis keeps state shared between API replicas in Redis.
package redis

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/storefront/internal/domain/auth"
)

const defaultPrefix = "storefront:revoked"

var _ auth.Revocations = (*Revocations)(nil)

// Revocations stores revoked API key ids as expiring keys, so every replica
// sees a revocation as soon as it is written.
type Revocations struct {
	client redis.Cmdable
	prefix string
}

// NewRevocations returns a Revocations set that uses client. An empty prefix
// selects the default key namespace.
func NewRevocations(client redis.Cmdable, prefix string) *Revocations {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Revocations{client: client, prefix: prefix}
}

// NewClient parses a redis:// url and returns a connected client.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return client, nil
}

func (r *Revocations) key(keyID string) string {
	var b strings.Builder
	b.Grow(len(r.prefix) + 1 + len(keyID))
	b.WriteString(r.prefix)
	b.WriteString(":")
	b.WriteString(keyID)
	return b.String()
}

// Revoke marks keyID as revoked for ttl.
func (r *Revocations) Revoke(ctx context.Context, keyID string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(keyID), time.Now().Unix(), ttl).Err(); err != nil {
		return errors.Wrapf(err, "revoke %q", keyID)
	}
	return nil
}

// IsRevoked reports whether keyID has an unexpired revocation.
func (r *Revocations) IsRevoked(ctx context.Context, keyID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(keyID)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "check revocation of %q", keyID)
	}
	return n > 0, nil
}
