// ABOUTME: Signed session tokens carried in the session cookie or a bearer header
// ABOUTME: Uses HS256 JWTs whose subject is the session ID

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWeakSecret   = errors.New("session secret must be at least 32 bytes")
)

// MinSecretLength is the shortest HS256 secret NewSessionSigner accepts.
const MinSecretLength = 32

// SessionVerifier resolves a signed token to the session ID it names.
type SessionVerifier interface {
	Verify(tokenString string) (sessionID string, err error)
}

// SessionSigner issues and verifies HS256 session tokens.
type SessionSigner struct {
	secret []byte
	now    func() time.Time
}

// NewSessionSigner creates a signer for the given secret.
func NewSessionSigner(secret []byte) (*SessionSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &SessionSigner{secret: secret, now: time.Now}, nil
}

// Verify validates the token and extracts the session ID from the "sub" claim
func (s *SessionSigner) Verify(tokenString string) (sessionID string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

// Issue creates a token for sessionID that expires after expiresIn.
func (s *SessionSigner) Issue(sessionID string, expiresIn time.Duration) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	now := s.now()
	claims := jwt.MapClaims{
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}
