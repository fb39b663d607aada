// Package identity holds the session/identity synchronization core: the
// state machine that reconciles three asynchronous sources of truth about
// "who is the current user" — the remote session provider, the local cache
// mirror, and redirect-based OAuth callbacks — into one authoritative value.
//
// Ordering discipline: every transition is stamped with a ticket from a
// monotonic counter and commits are last-ticket-wins. Bootstrap takes its
// ticket when it starts; provider events take theirs on arrival; user
// actions take theirs at commit time. A commit whose ticket is older than
// the last applied one is discarded, so a slow bootstrap can never clobber
// a session change that happened while it was in flight, and no transition
// is ever applied out of order.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/cache"
	"github.com/rafid/crosspost/internal/model"
	"github.com/rafid/crosspost/internal/provider"
)

// State is the synchronizer's position in its lifecycle.
type State int

const (
	// StateBootstrapping is the initial state, before the first
	// CurrentSession read has resolved. Deliberately distinct from
	// StateUnauthenticated so consumers can tell "still loading" from
	// "logged out".
	StateBootstrapping State = iota
	StateAuthenticated
	StateUnauthenticated
	// StateError marks an unrecoverable failure (the local cache broke
	// while the provider was already unreachable). Only a fresh Bootstrap
	// leaves it.
	StateError
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the read-only view handed to consumers. User is non-nil
// exactly when State is StateAuthenticated; Reason is set for StateError.
type Snapshot struct {
	State  State
	User   *model.User
	Reason string
}

// Synchronizer owns the process-wide session state. All mutations flow
// through its transition rules; consumers read Current() and nothing else.
type Synchronizer struct {
	provider provider.SessionProvider
	mirror   *cache.IdentityMirror
	logger   *slog.Logger

	tickets atomic.Uint64
	unsub   provider.Unsubscribe

	mu      sync.Mutex
	applied uint64
	snap    Snapshot
}

// New creates a Synchronizer in StateBootstrapping and subscribes to the
// provider's session events immediately, before any read, so a change firing
// during bootstrap cannot be missed. Call Bootstrap to resolve the initial
// state and Close to release the subscription.
func New(p provider.SessionProvider, mirror *cache.IdentityMirror, logger *slog.Logger) *Synchronizer {
	s := &Synchronizer{
		provider: p,
		mirror:   mirror,
		logger:   logger,
		snap:     Snapshot{State: StateBootstrapping},
	}
	s.unsub = p.Subscribe(s.onEvent)
	return s
}

// Close releases the provider subscription. The synchronizer must not be
// used afterwards.
func (s *Synchronizer) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// Current returns the latest committed snapshot.
func (s *Synchronizer) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Bootstrap resolves the initial session state: a live provider session if
// one exists, else the cached identity (stale-but-available — the mirrored
// user may correspond to an expired remote session, which is the accepted
// tradeoff), else unauthenticated. Provider failures here are recovered
// locally, never surfaced.
//
// The ticket is taken before the provider read so that any event arriving
// while the read is in flight outranks this bootstrap's result.
func (s *Synchronizer) Bootstrap(ctx context.Context) {
	ticket := s.tickets.Add(1)

	sess, err := s.provider.CurrentSession(ctx)
	if err == nil && sess != nil {
		user, rerr := s.resolve(ctx, sess)
		if rerr == nil {
			s.commitAuthenticated(ctx, ticket, user)
			return
		}
		// Session read succeeded but the profile fetch died; degrade to
		// the cache like any other provider failure during bootstrap.
		s.logger.Warn("bootstrap: profile resolution failed, falling back to cache",
			slog.String("error", rerr.Error()),
		)
	} else if err != nil {
		s.logger.Warn("bootstrap: session provider unreachable, falling back to cache",
			slog.String("error", err.Error()),
		)
	}

	// No usable remote session (absent, unreachable, or unresolvable):
	// the cache mirror decides between stale-Authenticated and
	// Unauthenticated.
	cached, cerr := s.mirror.Load(ctx)
	if cerr != nil {
		s.commitError(ticket, "local cache unavailable: "+cerr.Error())
		return
	}
	if cached != nil {
		s.commit(ticket, Snapshot{State: StateAuthenticated, User: cached})
		return
	}
	s.commit(ticket, Snapshot{State: StateUnauthenticated})
}

// onEvent applies a provider session change. The ticket is taken at arrival:
// the profile fetch for SignedIn may suspend, and a later action or event
// must still outrank this one's eventual commit.
func (s *Synchronizer) onEvent(e provider.Event) {
	ticket := s.tickets.Add(1)
	ctx := context.Background()

	switch e.Kind {
	case provider.SignedIn:
		if e.Session == nil {
			return
		}
		user, err := s.resolve(ctx, e.Session)
		if err != nil {
			s.commitError(ticket, "resolving signed-in identity: "+err.Error())
			return
		}
		s.commitAuthenticated(ctx, ticket, user)

	case provider.SignedOut:
		s.commitUnauthenticated(ctx, ticket)
	}
}

// Login authenticates with the provider and commits the resolved identity.
// Failures are surfaced as taxonomy errors and leave the state untouched.
func (s *Synchronizer) Login(ctx context.Context, email, password string) (*model.User, error) {
	sess, err := s.provider.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("identity: login: %w", err)
	}

	user, err := s.resolve(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("identity: login: %w", err)
	}

	s.commitAuthenticated(ctx, s.tickets.Add(1), user)
	return user, nil
}

// Register creates the account and its profile row, then commits the
// resolved identity. A profile Conflict means a concurrent path (usually
// the provider's own SignedIn event) already created it; that is success.
func (s *Synchronizer) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	sess, err := s.provider.Register(ctx, email, password, provider.Metadata{FullName: name})
	if err != nil {
		return nil, fmt.Errorf("identity: register: %w", err)
	}

	seed := provider.ProfileSeed{
		Name:      firstNonEmpty(name, model.DefaultDisplayName),
		Email:     email,
		Role:      model.DefaultRole,
		AvatarURL: model.DefaultAvatarURL,
	}
	if err := s.provider.CreateProfile(ctx, sess.UserID, seed); err != nil && !errors.Is(err, apperror.ErrConflict) {
		return nil, fmt.Errorf("identity: register: %w", err)
	}

	user, err := s.resolve(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("identity: register: %w", err)
	}

	s.commitAuthenticated(ctx, s.tickets.Add(1), user)
	return user, nil
}

// Logout signs out of the provider and commits Unauthenticated. A provider
// failure is surfaced and the state stays as it was.
func (s *Synchronizer) Logout(ctx context.Context) error {
	if err := s.provider.Logout(ctx); err != nil {
		return fmt.Errorf("identity: logout: %w", err)
	}
	s.commitUnauthenticated(ctx, s.tickets.Add(1))
	return nil
}

// BeginOAuth returns the URL to navigate the browser to. No state changes
// until the provider calls back.
func (s *Synchronizer) BeginOAuth(name, state string) (string, error) {
	url, err := s.provider.BeginOAuth(name, state)
	if err != nil {
		return "", fmt.Errorf("identity: begin oauth: %w", err)
	}
	return url, nil
}

// CompleteOAuthCallback finishes a redirect-based OAuth flow: the browser is
// back, so the provider should now hold a session. First-time users have no
// profile row yet; this is the one path that creates it, seeded from the
// provider's metadata. Calling it twice with the same underlying session is
// idempotent — the second create resolves through the Conflict-tolerant
// re-read.
func (s *Synchronizer) CompleteOAuthCallback(ctx context.Context) (*model.User, error) {
	sess, err := s.provider.CurrentSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("identity: oauth callback: %w", err)
	}
	if sess == nil {
		return nil, fmt.Errorf("identity: oauth callback: %w", apperror.NoSession())
	}

	prof, err := s.provider.FetchProfile(ctx, sess.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		seed := provider.ProfileSeed{
			Name:      firstNonEmpty(sess.Metadata.FullName, model.DefaultDisplayName),
			Email:     sess.Email,
			Role:      model.DefaultRole,
			AvatarURL: firstNonEmpty(sess.Metadata.AvatarURL, model.DefaultAvatarURL),
		}
		cerr := s.provider.CreateProfile(ctx, sess.UserID, seed)
		if cerr != nil && !errors.Is(cerr, apperror.ErrConflict) {
			return nil, fmt.Errorf("identity: oauth callback: %w", cerr)
		}
		// Re-read rather than trusting the seed: on Conflict the winning
		// writer's row is the truth.
		prof, err = s.provider.FetchProfile(ctx, sess.UserID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("identity: oauth callback: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("identity: oauth callback: %w", err)
	}

	user := merge(sess, prof)
	s.commitAuthenticated(ctx, s.tickets.Add(1), user)
	return user, nil
}

// resolve fetches the profile for a session and merges the two into a User.
// A missing profile is not an error: the identity is built from session
// defaults (profile creation belongs to the callback and register paths).
func (s *Synchronizer) resolve(ctx context.Context, sess *provider.Session) (*model.User, error) {
	prof, err := s.provider.FetchProfile(ctx, sess.UserID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}
	return merge(sess, prof), nil
}

// commitAuthenticated commits an Authenticated snapshot and mirrors the
// identity into the cache. A mirror write failure is logged, not fatal —
// the in-memory state is already authoritative.
func (s *Synchronizer) commitAuthenticated(ctx context.Context, ticket uint64, user *model.User) {
	if !s.commit(ticket, Snapshot{State: StateAuthenticated, User: user}) {
		return
	}
	if err := s.mirror.Store(ctx, user); err != nil {
		s.logger.Warn("identity: failed to mirror user into cache",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

// commitUnauthenticated commits Unauthenticated and purges the mirror.
func (s *Synchronizer) commitUnauthenticated(ctx context.Context, ticket uint64) {
	if !s.commit(ticket, Snapshot{State: StateUnauthenticated}) {
		return
	}
	if err := s.mirror.Clear(ctx); err != nil {
		s.logger.Warn("identity: failed to purge cached user",
			slog.String("error", err.Error()),
		)
	}
}

func (s *Synchronizer) commitError(ticket uint64, reason string) {
	s.logger.Error("identity: entering error state", slog.String("reason", reason))
	s.commit(ticket, Snapshot{State: StateError, Reason: reason})
}

// commit applies snap if ticket is still the newest. Returns whether the
// write landed.
func (s *Synchronizer) commit(ticket uint64, snap Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket < s.applied {
		s.logger.Debug("identity: discarding stale transition",
			slog.Uint64("ticket", ticket),
			slog.Uint64("applied", s.applied),
			slog.String("state", snap.State.String()),
		)
		return false
	}
	s.applied = ticket
	s.snap = snap
	return true
}
