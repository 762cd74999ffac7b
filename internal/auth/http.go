// ABOUTME: HTTP middleware that assigns each visitor a hosting session
// ABOUTME: and exchanges a ?frob= query parameter for a Flickr token on any request

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/flickr-gateway/internal/flickr"
)

// FrobParam is the query parameter Flickr appends to the auth callback.
const FrobParam = "frob"

// Authorizer is the part of the Flickr gateway the frob middleware drives.
type Authorizer interface {
	RecordFrob(ctx context.Context, sessionID, frob string) error
	CompleteAuth(ctx context.Context, sessionID string) (*flickr.AuthSession, error)
}

// SessionIssuer issues and verifies session tokens.
type SessionIssuer interface {
	SessionVerifier
	Issue(sessionID string, expiresIn time.Duration) (string, error)
}

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Name   string
	MaxAge time.Duration
	Secure bool
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(logger *slog.Logger, r *http.Request, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason, "remote_addr", r.RemoteAddr, "path", r.URL.Path}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("http auth failure", baseAttrs...)
}

// SessionMiddleware attaches a session ID to every request. A valid bearer
// token wins; otherwise the session cookie is used, and a fresh session is
// issued when the cookie is missing or no longer verifies. A bearer token
// that fails verification is rejected with 401.
func SessionMiddleware(issuer SessionIssuer, opts CookieOptions, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header := r.Header.Get("Authorization"); header != "" {
				token, errMsg := extractBearerToken(header)
				if errMsg != "" {
					logAuthFailure(logger, r, "token_extraction_failed", "detail", errMsg)
					http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
					return
				}
				sessionID, err := issuer.Verify(token)
				if err != nil {
					logAuthFailure(logger, r, "token_verification_failed", "error", err)
					http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
				return
			}

			if c, err := r.Cookie(opts.Name); err == nil {
				if sessionID, err := issuer.Verify(c.Value); err == nil {
					next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
					return
				}
				logAuthFailure(logger, r, "stale_session_cookie")
			}

			sessionID := uuid.NewString()
			token, err := issuer.Issue(sessionID, opts.MaxAge)
			if err != nil {
				if logger != nil {
					logger.Error("issuing session token", "error", err)
				}
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     opts.Name,
				Value:    token,
				Path:     "/",
				MaxAge:   int(opts.MaxAge / time.Second),
				HttpOnly: true,
				Secure:   opts.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
		})
	}
}

// FrobMiddleware exchanges a ?frob= parameter for a token whenever a request
// carries one, then records the outcome with WithStatus. The request always
// continues; handlers decide what a failed exchange means.
// Must be used after SessionMiddleware.
func FrobMiddleware(authz Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			frob := r.URL.Query().Get(FrobParam)
			sessionID := SessionIDFromContext(r.Context())
			if frob == "" || sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}

			status := &Status{Attempted: true}
			if err := authz.RecordFrob(r.Context(), sessionID, frob); err != nil {
				status.Err = err
			} else {
				status.Session, status.Err = authz.CompleteAuth(r.Context(), sessionID)
			}

			if status.Err != nil {
				logger.Warn("frob exchange failed", "session", sessionID, "error", status.Err)
			} else {
				logger.Info("frob exchanged", "session", sessionID, "perms", status.Session.PermissionLevel.String())
			}

			next.ServeHTTP(w, r.WithContext(WithStatus(r.Context(), status)))
		})
	}
}
