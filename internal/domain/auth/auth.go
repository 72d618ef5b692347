// Package auth models the authenticated caller of the API.
package auth

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrRevoked     = errors.New("api key revoked")
)

// Role is the permission level of a caller.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Privileged reports whether the role may manage other users' orders.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleStaff
}

// Actor is the caller an operation runs on behalf of.
type Actor struct {
	UserID int64
	Role   Role
	// KeyID is the API key the actor authenticated with.
	KeyID string
}

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  int64
	Role    Role
}

// Actor returns the caller identified by the key.
func (k APIKeyInfo) Actor() Actor {
	return Actor{UserID: k.UserID, Role: k.Role, KeyID: k.ID}
}

// Repository provides lookup of active API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
	// Deactivate permanently disables the key. Unknown ids are not an error.
	Deactivate(ctx context.Context, keyID string) error
}

// Revocations is the shared set of revoked key identifiers. Entries expire
// after the ttl passed to Revoke; a revoked key is also deactivated in the
// Repository, so the set only has to outlive replica caches.
type Revocations interface {
	Revoke(ctx context.Context, keyID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, keyID string) (bool, error)
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
