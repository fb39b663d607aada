package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rafid/crosspost/internal/model"
)

// IdentityMirror is the typed view over the KeyCurrentUser blob. The
// synchronizer writes it on every identity create/refresh and purges it on
// sign-out; bootstrap reads it as the fallback when the provider is
// unreachable.
type IdentityMirror struct {
	kv     KV
	logger *slog.Logger
}

// NewIdentityMirror wraps kv with JSON (de)serialization of the current user.
func NewIdentityMirror(kv KV, logger *slog.Logger) *IdentityMirror {
	return &IdentityMirror{kv: kv, logger: logger}
}

// Load returns the cached user, or nil when absent. A blob that fails to
// parse is treated as absent — a stale or corrupt mirror must never take the
// whole bootstrap down.
func (m *IdentityMirror) Load(ctx context.Context) (*model.User, error) {
	raw, ok, err := m.kv.Get(ctx, KeyCurrentUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var user model.User
	if err := json.Unmarshal(raw, &user); err != nil {
		m.logger.Warn("cache: discarding unparsable currentUser blob",
			slog.String("error", err.Error()),
		)
		return nil, nil
	}
	if user.ID == "" {
		// An identity without an id is useless as a fallback.
		return nil, nil
	}
	return &user, nil
}

// Store mirrors user into the cache.
func (m *IdentityMirror) Store(ctx context.Context, user *model.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return m.kv.Put(ctx, KeyCurrentUser, raw)
}

// Clear purges the mirror.
func (m *IdentityMirror) Clear(ctx context.Context) error {
	return m.kv.Delete(ctx, KeyCurrentUser)
}
