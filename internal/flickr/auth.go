// ABOUTME: Auth URL building and the frob to token exchange
// ABOUTME: These are the operations the hosting web layer calls during login

package flickr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
)

// BuildAuthURL returns the Flickr URL a user is redirected to in order to
// grant perms to this application. extra is echoed back on the callback.
// Unknown permission names are downgraded to read.
func (g *Gateway) BuildAuthURL(perms, extra string) (string, error) {
	params := url.Values{}
	params.Set("api_key", g.apiKey)
	params.Set("perms", requestableLevel(perms).String())
	if extra != "" {
		params.Set("extra", extra)
	}

	sig, err := signValues(g.apiSecret, params)
	if err != nil {
		return "", err
	}

	host, ok := g.hosts[DomainAuth]
	if !ok || host == "" {
		return "", fmt.Errorf("%w: no host for domain %s", ErrConfig, DomainAuth)
	}
	u := url.URL{
		Scheme:   g.scheme,
		Host:     host,
		Path:     g.authPath,
		RawQuery: params.Encode() + "&" + paramSignature + "=" + url.QueryEscape(sig),
	}
	return u.String(), nil
}

// RecordFrob stores the frob Flickr sent back on the auth callback.
func (g *Gateway) RecordFrob(ctx context.Context, sessionID, frob string) error {
	if err := g.sessions.RecordFrob(ctx, sessionID, frob); err != nil {
		return err
	}
	g.logger.Debug("frob recorded", "session", sessionID)
	return nil
}

// CompleteAuth exchanges the session's frob for an auth token. On success
// the session records the token, granted level and user, keeping the frob.
// On any failure the stored session is left untouched.
func (g *Gateway) CompleteAuth(ctx context.Context, sessionID string) (*AuthSession, error) {
	session, err := g.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Frob == "" {
		return nil, ErrNoFrob
	}

	resp, err := g.Invoke(ctx, MethodGetToken, map[string]string{"frob": session.Frob}, CallOptions{
		SkipPermissionCheck: true,
		Format:              FormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("exchanging frob: %w", err)
	}

	token, perms, user, err := parseAuth(resp.Map())
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Method: MethodGetToken, Body: resp.Body, Err: err}
	}

	updated := *session
	updated.AuthToken = token
	updated.PermissionLevel = grantedLevel(perms)
	updated.User = user
	if err := g.sessions.Save(ctx, sessionID, &updated); err != nil {
		return nil, err
	}

	g.logger.Info("flickr session authorized", "session", sessionID, "perms", updated.PermissionLevel, "user", userName(user))
	return &updated, nil
}

// CheckToken verifies the session's token with Flickr and refreshes the
// granted level and user. A token Flickr rejects is dropped from the session.
func (g *Gateway) CheckToken(ctx context.Context, sessionID string) (*AuthSession, error) {
	session, err := g.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.AuthToken == "" {
		return nil, &Error{Kind: ErrInvalidToken, Method: MethodCheckToken, PreFlight: true, Message: "session has no token"}
	}

	resp, err := g.Invoke(ctx, MethodCheckToken, nil, CallOptions{
		SessionID:           sessionID,
		SkipPermissionCheck: true,
		Format:              FormatJSON,
	})
	if errors.Is(err, ErrInvalidToken) {
		reset := &AuthSession{Frob: session.Frob}
		if saveErr := g.sessions.Save(ctx, sessionID, reset); saveErr != nil {
			return nil, saveErr
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("checking token: %w", err)
	}

	token, perms, user, err := parseAuth(resp.Map())
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Method: MethodCheckToken, Body: resp.Body, Err: err}
	}
	updated := *session
	if token != "" {
		updated.AuthToken = token
	}
	updated.PermissionLevel = grantedLevel(perms)
	updated.User = user
	if err := g.sessions.Save(ctx, sessionID, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// ClearSession returns the session to the unauthenticated state.
func (g *Gateway) ClearSession(ctx context.Context, sessionID string) error {
	return g.sessions.Clear(ctx, sessionID)
}

// parseAuth extracts the token, permission name and user from an
// auth.getToken or auth.checkToken response.
func parseAuth(m map[string]any) (token, perms string, user *User, err error) {
	if _, ok := Lookup(m, "auth"); !ok {
		return "", "", nil, errors.New("response has no auth element")
	}
	token = Text(m, "auth", "token")
	if token == "" {
		return "", "", nil, errors.New("response has no token")
	}
	perms = Text(m, "auth", "perms")
	if _, ok := Lookup(m, "auth", "user"); ok {
		user = &User{
			NSID:     Text(m, "auth", "user", "nsid"),
			Username: Text(m, "auth", "user", "username"),
			FullName: Text(m, "auth", "user", "fullname"),
		}
	}
	return token, perms, user, nil
}

func userName(u *User) string {
	if u == nil {
		return ""
	}
	return u.Username
}
