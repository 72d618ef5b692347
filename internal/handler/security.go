package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// APIKeyHeader carries the caller's API key. "Authorization: Bearer <key>"
// is accepted as well.
const APIKeyHeader = "api_key"

var errMissingKey = errors.New("missing api key")

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form API
// keys are stored in.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves API keys to actors.
type Authenticator struct {
	keys    auth.Repository
	revoked auth.Revocations
	pepper  []byte
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(keys auth.Repository, revoked auth.Revocations, pepper []byte) *Authenticator {
	return &Authenticator{keys: keys, revoked: revoked, pepper: pepper}
}

// Authenticate returns the actor owning key. It fails with
// auth.ErrKeyNotFound for unknown keys and auth.ErrRevoked for revoked ones.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (auth.Actor, error) {
	if key == "" {
		return auth.Actor{}, errMissingKey
	}
	sum := HashKey(a.pepper, key)

	info, err := a.keys.FindByHash(ctx, sum)
	if err != nil {
		return auth.Actor{}, err
	}
	if subtle.ConstantTimeCompare([]byte(sum), []byte(info.KeyHash)) != 1 {
		return auth.Actor{}, auth.ErrKeyNotFound
	}

	revoked, err := a.revoked.IsRevoked(ctx, info.ID)
	if err != nil {
		return auth.Actor{}, errors.Wrap(err, "check revocation")
	}
	if revoked {
		return auth.Actor{}, auth.ErrRevoked
	}
	return info.Actor(), nil
}

func requestKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// Middleware rejects requests without a valid key and stores the actor in
// the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.Authenticate(r.Context(), requestKey(r))
		switch {
		case err == nil:
		case errors.Is(err, errMissingKey), errors.Is(err, auth.ErrKeyNotFound), errors.Is(err, auth.ErrRevoked):
			httpmiddleware.WriteError(w, http.StatusUnauthorized, "Unauthenticated", err.Error())
			return
		default:
			zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
			httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
			return
		}

		ctx := auth.WithActor(r.Context(), actor)
		lg := zctx.From(ctx).With(zap.Int64("user_id", actor.UserID))
		next.ServeHTTP(w, r.WithContext(zctx.Base(ctx, lg)))
	})
}

// revoke deactivates the caller's key and adds it to the revocation set.
func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	if err := h.auth.keys.Deactivate(r.Context(), a.KeyID); err != nil {
		zctx.From(r.Context()).Error("Deactivate api key", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	if err := h.auth.revoked.Revoke(r.Context(), a.KeyID, h.cfg.RevocationTTL); err != nil {
		zctx.From(r.Context()).Error("Revoke api key", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "Internal", "internal error")
		return
	}
	zctx.From(r.Context()).Info("API key revoked", zap.String("key_id", a.KeyID))
	w.WriteHeader(http.StatusNoContent)
}
