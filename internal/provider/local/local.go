// Package local is a self-hosted SessionProvider. It keeps accounts and
// profiles in its own SQLite tables, hashes passwords with bcrypt, issues
// JWT access tokens, and publishes session-change events through a hub —
// the full adapter contract with no external backend to stand up.
//
// Like the browser client it replaces, the "current session" is held by the
// provider instance itself: login and registration set it, logout clears it,
// and CurrentSession reads it.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/auth"
	"github.com/rafid/crosspost/internal/provider"
)

// Provider implements provider.SessionProvider against local SQLite state.
type Provider struct {
	conn      *sql.DB
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	oauth     *provider.OAuthRegistry
	hub       *provider.Hub
	logger    *slog.Logger

	mu      sync.Mutex
	current *provider.Session
}

var _ provider.SessionProvider = (*Provider)(nil)

// Options bundles the constructor dependencies.
type Options struct {
	DBPath    string
	Tokens    *auth.TokenService
	Passwords *auth.PasswordService
	OAuth     *provider.OAuthRegistry // may be nil; BeginOAuth then always rejects
	Logger    *slog.Logger
}

// New opens (or creates) the provider database and prepares the schema.
func New(opts Options) (*Provider, error) {
	conn, err := sql.Open("sqlite", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("local: opening database: %w", err)
	}

	// SQLite has a single writer, and a :memory: database exists per
	// connection; one pooled connection covers both.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("local: pinging database: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("local: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("local: enabling foreign keys: %w", err)
	}

	p := &Provider{
		conn:      conn,
		tokens:    opts.Tokens,
		passwords: opts.Passwords,
		oauth:     opts.OAuth,
		hub:       provider.NewHub(),
		logger:    opts.Logger,
	}
	if err := p.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("local: running migrations: %w", err)
	}
	return p, nil
}

// Close closes the underlying database.
func (p *Provider) Close() error {
	return p.conn.Close()
}

func (p *Provider) migrate() error {
	_, err := p.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name     TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS profiles (
			user_id    TEXT PRIMARY KEY REFERENCES users(id),
			name       TEXT NOT NULL,
			email      TEXT NOT NULL,
			role       TEXT NOT NULL DEFAULT 'user',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// CurrentSession returns the session this provider currently holds, or nil.
func (p *Provider) CurrentSession(ctx context.Context) (*provider.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, nil
	}
	sess := *p.current
	return &sess, nil
}

// FetchProfile looks up the denormalized profile row for userID.
func (p *Provider) FetchProfile(ctx context.Context, userID string) (*provider.Profile, error) {
	var prof provider.Profile
	err := p.conn.QueryRowContext(ctx,
		`SELECT user_id, name, role, avatar_url FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&prof.UserID, &prof.Name, &prof.Role, &prof.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, apperror.NotFound("profile", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("local: fetching profile %s: %w", userID, err)
	}
	return &prof, nil
}

// CreateProfile inserts the profile row for userID. A concurrent creator
// winning the race surfaces as ErrConflict, which callers tolerate.
func (p *Provider) CreateProfile(ctx context.Context, userID string, seed provider.ProfileSeed) error {
	role := seed.Role
	if role == "" {
		role = "user"
	}
	_, err := p.conn.ExecContext(ctx,
		`INSERT INTO profiles (user_id, name, email, role, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, seed.Name, seed.Email, role, seed.AvatarURL, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("profile", userID)
		}
		return fmt.Errorf("local: creating profile %s: %w", userID, err)
	}
	return nil
}

// Login verifies credentials, installs the session, and publishes SignedIn.
func (p *Provider) Login(ctx context.Context, email, password string) (*provider.Session, error) {
	var (
		id, hash, fullName, avatarURL string
	)
	err := p.conn.QueryRowContext(ctx,
		`SELECT id, password_hash, full_name, avatar_url FROM users WHERE email = ?`,
		email,
	).Scan(&id, &hash, &fullName, &avatarURL)
	if err == sql.ErrNoRows {
		return nil, apperror.InvalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("local: looking up %s: %w", email, err)
	}

	if err := p.passwords.Verify(hash, password); err != nil {
		return nil, apperror.InvalidCredentials()
	}

	token, err := p.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("local: issuing token for %s: %w", id, err)
	}

	sess := &provider.Session{
		UserID:      id,
		Email:       email,
		AccessToken: token,
		Metadata: provider.Metadata{
			FullName:  fullName,
			AvatarURL: avatarURL,
		},
	}
	p.install(sess)

	p.logger.Info("session provider: signed in",
		slog.String("userID", id),
	)
	return sess, nil
}

// Register creates the account, installs the session, and publishes
// SignedIn. The profile row is the caller's job (the synchronizer creates it
// so registration and first-OAuth share one code path).
func (p *Provider) Register(ctx context.Context, email, password string, meta provider.Metadata) (*provider.Session, error) {
	if err := p.passwords.CheckStrength(password); err != nil {
		return nil, err
	}

	hash, err := p.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("local: hashing password: %w", err)
	}

	id := xid.New().String()
	_, err = p.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, full_name, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, hash, meta.FullName, meta.AvatarURL, time.Now(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.EmailTaken(email)
		}
		return nil, fmt.Errorf("local: inserting user %s: %w", email, err)
	}

	token, err := p.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("local: issuing token for %s: %w", id, err)
	}

	sess := &provider.Session{
		UserID:      id,
		Email:       email,
		AccessToken: token,
		Metadata:    meta,
	}
	p.install(sess)

	p.logger.Info("session provider: registered",
		slog.String("userID", id),
	)
	return sess, nil
}

// Logout clears the session and publishes SignedOut.
func (p *Provider) Logout(ctx context.Context) error {
	p.mu.Lock()
	had := p.current != nil
	p.current = nil
	p.mu.Unlock()

	if had {
		p.hub.Publish(provider.Event{Kind: provider.SignedOut})
	}
	return nil
}

// BeginOAuth returns the authorization URL for the named provider. The
// caller supplies the CSRF state so it can verify it on callback.
func (p *Provider) BeginOAuth(name, state string) (string, error) {
	if p.oauth == nil {
		return "", apperror.UnsupportedProvider(name)
	}
	return p.oauth.AuthURL(name, state)
}

// Subscribe registers a session-change listener.
func (p *Provider) Subscribe(fn func(provider.Event)) provider.Unsubscribe {
	return p.hub.Subscribe(fn)
}

// install sets the current session and announces it. Kept separate so an
// out-of-band OAuth completion could install a session through the same path.
func (p *Provider) install(sess *provider.Session) {
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()

	p.hub.Publish(provider.Event{Kind: provider.SignedIn, Session: sess})
}

// isUniqueViolation reports whether err is sqlite's UNIQUE constraint
// failure. The pure-Go driver exposes it only as a message, so match on it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
