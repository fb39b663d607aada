// Package instagram exchanges OAuth authorization codes for Instagram
// access tokens against a configurable exchange endpoint.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/cache"
)

const defaultTimeout = 10 * time.Second

// Exchanger trades an authorization code for an access token and stores the
// token in the local cache. Exchange is fail-closed: unless the endpoint
// returns a well-formed token, nothing is stored and the error surfaces.
type Exchanger struct {
	endpoint string
	client   *http.Client
	tokens   *cache.PlatformTokens
	logger   *slog.Logger
}

// Options configures an Exchanger.
type Options struct {
	Endpoint string // token exchange URL, required
	Client   *http.Client
	Tokens   *cache.PlatformTokens
	Logger   *slog.Logger
}

func New(opts Options) *Exchanger {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Exchanger{
		endpoint: opts.Endpoint,
		client:   client,
		tokens:   opts.Tokens,
		logger:   opts.Logger,
	}
}

// Exchange sends the authorization code to the exchange endpoint and
// persists the returned access token.
func (e *Exchanger) Exchange(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", apperror.ValidationFailed("code", "authorization code is required")
	}

	u, err := url.Parse(e.endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing exchange endpoint: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building exchange request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Warn("instagram token exchange failed", slog.String("error", err.Error()))
		return "", apperror.ProviderUnavailable()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		e.logger.Warn("instagram token exchange rejected", slog.Int("status", resp.StatusCode))
		return "", apperror.ProviderUnavailable()
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decoding exchange response: %w", err)
	}
	if body.AccessToken == "" {
		return "", apperror.ProviderUnavailable()
	}

	if err := e.tokens.StoreInstagram(ctx, body.AccessToken); err != nil {
		return "", fmt.Errorf("storing instagram token: %w", err)
	}
	e.logger.Info("instagram access token stored")
	return body.AccessToken, nil
}
