package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafid/crosspost/internal/auth"
	"github.com/rafid/crosspost/internal/cache"
	"github.com/rafid/crosspost/internal/identity"
	"github.com/rafid/crosspost/internal/model"
	"github.com/rafid/crosspost/internal/platform/instagram"
	"github.com/rafid/crosspost/internal/post"
	"github.com/rafid/crosspost/internal/provider/local"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testEnv struct {
	router *chi.Mux
	tokens *cache.PlatformTokens
}

// newTestEnv wires real components end to end: in-memory sqlite for both the
// cache and the account store, a fake Instagram exchange endpoint, and the
// same routes the server mounts.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := testLogger()

	cacheDB, err := cache.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { cacheDB.Close() })

	tokenSvc, err := auth.NewTokenService("test-secret-0123456789abcdef", 0)
	require.NoError(t, err)

	sessions, err := local.New(local.Options{
		DBPath:    ":memory:",
		Tokens:    tokenSvc,
		Passwords: auth.NewPasswordServiceForTest(4),
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	sync := identity.New(sessions, cache.NewIdentityMirror(cacheDB, logger), logger)
	t.Cleanup(sync.Close)
	sync.Bootstrap(t.Context())

	store, err := post.New(t.Context(), post.Options{
		Archive: cache.NewPostArchive(cacheDB, logger),
		Logger:  logger,
	})
	require.NoError(t, err)

	igServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("code") == "good-code" {
			fmt.Fprint(w, `{"access_token":"IGQVtoken"}`)
			return
		}
		http.Error(w, "bad code", http.StatusBadRequest)
	}))
	t.Cleanup(igServer.Close)

	platformTokens := cache.NewPlatformTokens(cacheDB)
	exchanger := instagram.New(instagram.Options{
		Endpoint: igServer.URL,
		Client:   igServer.Client(),
		Tokens:   platformTokens,
		Logger:   logger,
	})

	authH := NewAuthHandler(sync, exchanger, logger)
	postH := NewPostHandler(store, logger)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", authH.HandleLogin)
		r.Post("/register", authH.HandleRegister)
		r.Post("/logout", authH.HandleLogout)
		r.Get("/me", authH.HandleMe)
		r.Get("/callback", authH.HandleOAuthCallback)
		r.Get("/{provider}", authH.HandleOAuthStart)
	})
	router.Route("/posts", func(r chi.Router) {
		r.Post("/", postH.HandleCreate)
		r.Get("/", postH.HandleList)
		r.Get("/upcoming", postH.HandleUpcoming)
		r.Get("/stats", postH.HandleStats)
		r.Get("/{id}", postH.HandleGet)
		r.Patch("/{id}", postH.HandleUpdate)
		r.Delete("/{id}", postH.HandleDelete)
	})

	return &testEnv{router: router, tokens: platformTokens}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRegisterLoginLogoutFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/auth/register", map[string]string{
		"name": "Nadia", "email": "nadia@example.com", "password": "longenough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[model.User](t, rec)
	assert.Equal(t, "Nadia", user.Name)
	assert.Equal(t, "nadia@example.com", user.Email)

	rec = env.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, "authenticated", decode[identityResponse](t, rec).State)

	rec = env.do(t, http.MethodPost, "/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/auth/me", nil)
	assert.Equal(t, "unauthenticated", decode[identityResponse](t, rec).State)

	rec = env.do(t, http.MethodPost, "/auth/login", map[string]string{
		"email": "nadia@example.com", "password": "longenough",
	})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAuthErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
	}{
		{"bad json", http.MethodPost, "/auth/login", nil, http.StatusBadRequest, "validation_error"},
		{"missing fields", http.MethodPost, "/auth/login", map[string]string{"email": "a@b.c"}, http.StatusBadRequest, "validation_error"},
		{"unknown account", http.MethodPost, "/auth/login", map[string]string{"email": "ghost@example.com", "password": "longenough"}, http.StatusUnauthorized, "unauthorized"},
		{"weak password", http.MethodPost, "/auth/register", map[string]string{"email": "a@b.c", "password": "short"}, http.StatusBadRequest, "validation_error"},
		{"unknown oauth provider", http.MethodGet, "/auth/myspace", nil, http.StatusBadRequest, "unsupported_provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	body := map[string]string{"email": "dup@example.com", "password": "longenough"}
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/auth/register", body).Code)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/auth/register", body).Code)
}

func TestPostCRUD(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)

	rec := env.do(t, http.MethodPost, "/posts/", map[string]string{
		"title": "Launch", "platform": "twitter", "start": start,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[model.Post](t, rec)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusScheduled, created.Status)

	rec = env.do(t, http.MethodGet, "/posts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPatch, "/posts/"+created.ID, map[string]string{"title": "Launch day"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Launch day", decode[model.Post](t, rec).Title)

	rec = env.do(t, http.MethodGet, "/posts/", nil)
	assert.Len(t, decode[[]model.Post](t, rec), 1)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/posts/"+created.ID, nil).Code)
	// Deleting again is still a 204.
	assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/posts/"+created.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/posts/"+created.ID, nil).Code)
}

func TestPostValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/posts/", map[string]string{"title": "no platform"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPatch, "/posts/nope", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpcomingEndpoint(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()

	for i, offset := range []time.Duration{3 * time.Hour, time.Hour, -time.Hour} {
		rec := env.do(t, http.MethodPost, "/posts/", map[string]string{
			"title":    fmt.Sprintf("p%d", i),
			"platform": "linkedin",
			"start":    now.Add(offset).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/posts/upcoming?limit=5", nil)
	posts := decode[[]model.Post](t, rec)
	require.Len(t, posts, 2)
	assert.True(t, posts[0].Start.Before(posts[1].Start), "upcoming not sorted by start")

	rec = env.do(t, http.MethodGet, "/posts/upcoming?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpcomingEndpointClampsHugeLimit(t *testing.T) {
	env := newTestEnv(t)
	start := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	rec := env.do(t, http.MethodPost, "/posts/", map[string]string{"title": "p", "platform": "twitter", "start": start})
	require.Equal(t, http.StatusCreated, rec.Code)

	// The limit sizes an allocation; an absurd value must be served, not
	// turned into a makeslice panic or a giant preallocation.
	rec = env.do(t, http.MethodGet, "/posts/upcoming?limit=9000000000000000000", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decode[[]model.Post](t, rec)
	assert.Len(t, posts, 1)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)

	env.do(t, http.MethodPost, "/posts/", map[string]string{"title": "a", "platform": "twitter", "start": future})
	env.do(t, http.MethodPost, "/posts/", map[string]string{"title": "b", "platform": "instagram", "start": past})

	stats := decode[statsResponse](t, env.do(t, http.MethodGet, "/posts/stats", nil))
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.ByPlatform[model.PlatformTwitter])
}

func TestInstagramCallback(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/callback?source=instagram&code=good-code", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())

	tok, err := env.tokens.Instagram(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "IGQVtoken", tok)

	// A rejected exchange stores nothing and fails loudly.
	rec = env.do(t, http.MethodGet, "/auth/callback?source=instagram&code=bad-code", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestOAuthCallbackRequiresState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/auth/callback?code=x&state=y", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
