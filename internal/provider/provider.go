// Package provider defines the contract for the remote session provider —
// the external identity backend that owns sessions, credentials, and
// profiles. The rest of the application consumes it only through the
// SessionProvider interface; the synchronizer never assumes a particular
// backend.
package provider

import "context"

// Session is a point-in-time view of the provider's authenticated session.
type Session struct {
	UserID      string // provider-assigned, stable account identifier
	Email       string
	AccessToken string
	Metadata    Metadata // attributes the provider attached at sign-up/OAuth time
}

// Metadata carries the provider-supplied user attributes that seed an
// identity when no profile row exists yet. Either field may be empty.
type Metadata struct {
	FullName  string
	AvatarURL string
}

// Profile is the denormalized attribute record keyed by the session's user
// id. It lives separately from the session: a brand-new OAuth user has a
// session but no profile until one is created.
type Profile struct {
	UserID    string
	Name      string
	Role      string
	AvatarURL string
}

// ProfileSeed is the initial attribute set for CreateProfile.
type ProfileSeed struct {
	Name      string
	Email     string
	Role      string
	AvatarURL string
}

// EventKind discriminates session-change notifications.
type EventKind int

const (
	// SignedIn reports that the provider now holds an authenticated
	// session, carried in Event.Session. Fired on login, registration,
	// and out-of-band OAuth completion.
	SignedIn EventKind = iota
	// SignedOut reports that the session is gone.
	SignedOut
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "SIGNED_IN"
	case SignedOut:
		return "SIGNED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Event is a session-change notification delivered to subscribers.
type Event struct {
	Kind    EventKind
	Session *Session // non-nil for SignedIn
}

// Unsubscribe releases a subscription. Callers must invoke it on teardown;
// a leaked listener keeps firing into a component that no longer exists.
type Unsubscribe func()

// SessionProvider is the adapter contract over the remote identity backend.
//
// Error contract, by operation:
//   - CurrentSession: (nil, nil) when signed out; ErrProviderUnavailable
//     when the backend is unreachable — callers fall back to the cache,
//     they do not treat this as unauthenticated.
//   - FetchProfile: ErrNotFound when no profile row exists.
//   - CreateProfile: ErrConflict when a concurrent creator won the race;
//     callers tolerate it and re-read.
//   - Login: ErrInvalidCredentials, ErrProviderUnavailable.
//   - Register: ErrEmailTaken, ErrWeakPassword, ErrProviderUnavailable.
//   - Logout: ErrProviderUnavailable.
//   - BeginOAuth: ErrUnsupportedProvider. It does not authenticate; it only
//     returns the URL the browser must be navigated to.
type SessionProvider interface {
	CurrentSession(ctx context.Context) (*Session, error)
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
	CreateProfile(ctx context.Context, userID string, seed ProfileSeed) error
	Login(ctx context.Context, email, password string) (*Session, error)
	Register(ctx context.Context, email, password string, meta Metadata) (*Session, error)
	Logout(ctx context.Context) error
	BeginOAuth(name, state string) (string, error)
	Subscribe(fn func(Event)) Unsubscribe
}
