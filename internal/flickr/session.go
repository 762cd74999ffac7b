// ABOUTME: Per-session auth state (permission level, frob, token, user) and its store
// ABOUTME: Sessions moves a session from unauthenticated through frob-pending to authorized

package flickr

import (
	"context"
	"errors"
	"fmt"

	"github.com/2389/flickr-gateway/internal/store"
)

// SessionNamespace is the namespace auth state is stored under.
const SessionNamespace = "flickr"

// AuthState is the stage of the frob → token exchange a session is in.
type AuthState string

const (
	StateUnauthenticated AuthState = "unauthenticated"
	StateFrobPending     AuthState = "frob_pending"
	StateAuthorized      AuthState = "authorized"
)

// User is the Flickr identity attached to an auth token.
type User struct {
	NSID     string `cbor:"nsid" json:"nsid"`
	Username string `cbor:"username" json:"username"`
	FullName string `cbor:"fullname,omitempty" json:"fullname,omitempty"`
}

// AuthSession is the auth record of one session.
type AuthSession struct {
	PermissionLevel Level  `cbor:"perms"`
	Frob            string `cbor:"frob,omitempty"`
	AuthToken       string `cbor:"token,omitempty"`
	User            *User  `cbor:"user,omitempty"`
}

// State derives the exchange stage from the recorded fields.
func (s *AuthSession) State() AuthState {
	switch {
	case s == nil:
		return StateUnauthenticated
	case s.AuthToken != "":
		return StateAuthorized
	case s.Frob != "":
		return StateFrobPending
	default:
		return StateUnauthenticated
	}
}

// SessionStore persists per-session records by namespace. Read returns
// store.ErrNotFound when nothing is recorded.
type SessionStore interface {
	Read(ctx context.Context, sessionID, namespace string) ([]byte, error)
	Write(ctx context.Context, sessionID, namespace string, value []byte) error
	Delete(ctx context.Context, sessionID, namespace string) error
	Check(ctx context.Context, sessionID, namespace string) (bool, error)
}

// Sessions reads and writes AuthSession records.
type Sessions struct {
	store     SessionStore
	namespace string
}

// NewSessions wraps a session store.
func NewSessions(s SessionStore) *Sessions {
	return &Sessions{store: s, namespace: SessionNamespace}
}

// Load returns the session's auth record, or an empty one if none exists.
func (s *Sessions) Load(ctx context.Context, sessionID string) (*AuthSession, error) {
	if sessionID == "" {
		return &AuthSession{}, nil
	}
	data, err := s.store.Read(ctx, sessionID, s.namespace)
	if errors.Is(err, store.ErrNotFound) {
		return &AuthSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var a AuthSession
	if err := unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &a, nil
}

// Save writes the session's auth record.
func (s *Sessions) Save(ctx context.Context, sessionID string, a *AuthSession) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrConfig)
	}
	data, err := marshal(a)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if err := s.store.Write(ctx, sessionID, s.namespace, data); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

// Clear removes the record, returning the session to unauthenticated.
func (s *Sessions) Clear(ctx context.Context, sessionID string) error {
	err := s.store.Delete(ctx, sessionID, s.namespace)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("clearing session: %w", err)
	}
	return nil
}

// HasFrob reports whether a frob has been recorded for the session.
func (s *Sessions) HasFrob(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.store.Check(ctx, sessionID, s.namespace)
	if err != nil || !ok {
		return false, err
	}
	a, err := s.Load(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return a.Frob != "", nil
}

// RecordFrob stores frob for the session, replacing any earlier one. Other
// fields are left as they are.
func (s *Sessions) RecordFrob(ctx context.Context, sessionID, frob string) error {
	if frob == "" {
		return fmt.Errorf("%w: empty frob", ErrNoFrob)
	}
	a, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	a.Frob = frob
	return s.Save(ctx, sessionID, a)
}
