package cache

import "context"

// PlatformTokens stores per-platform access tokens obtained through
// side-channel exchanges (currently only Instagram). Tokens are opaque
// strings, stored as-is.
type PlatformTokens struct {
	kv KV
}

// NewPlatformTokens wraps kv for platform token storage.
func NewPlatformTokens(kv KV) *PlatformTokens {
	return &PlatformTokens{kv: kv}
}

// StoreInstagram saves the Instagram access token.
func (t *PlatformTokens) StoreInstagram(ctx context.Context, token string) error {
	return t.kv.Put(ctx, KeyInstagramToken, []byte(token))
}

// Instagram returns the saved Instagram token, or "" when absent.
func (t *PlatformTokens) Instagram(ctx context.Context) (string, error) {
	raw, ok, err := t.kv.Get(ctx, KeyInstagramToken)
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}
