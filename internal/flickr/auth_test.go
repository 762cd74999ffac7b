// ABOUTME: Tests for the auth URL and the frob to token exchange
// ABOUTME: Verifies state transitions and that failed exchanges leave stored sessions untouched

package flickr

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const getTokenJSON = `{"auth":{"token":{"_content":"T"},"perms":{"_content":""},
	"user":{"nsid":"12345@N00","username":"alice","fullname":"Alice Example"}},"stat":"ok"}`

func parseAuthURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestBuildAuthURL_RequestedPerms(t *testing.T) {
	env := newTestGateway(t, nil)

	raw, err := env.gw.BuildAuthURL("write", "")
	require.NoError(t, err)

	u := parseAuthURL(t, raw)
	assert.Equal(t, "https", u.Scheme)
	assert.Equal(t, "www.flickr.com", u.Host)
	assert.Equal(t, DefaultAuthPath, u.Path)

	q := u.Query()
	assert.Equal(t, "write", q.Get("perms"))
	assert.Equal(t, testAPIKey, q.Get("api_key"))
	assert.False(t, q.Has("extra"))
	assert.Regexp(t, `^[0-9a-f]{32}$`, q.Get(paramSignature))
	assert.Equal(t, signatureOf(t, q), q.Get(paramSignature))
}

func TestBuildAuthURL_UnknownPermsDowngradeToRead(t *testing.T) {
	env := newTestGateway(t, nil)

	raw, err := env.gw.BuildAuthURL("bogus-level", "")
	require.NoError(t, err)
	assert.Equal(t, "read", parseAuthURL(t, raw).Query().Get("perms"))
}

func TestBuildAuthURL_ExtraIsSigned(t *testing.T) {
	env := newTestGateway(t, func(o *Options) { o.APISecret = "SECRET" })

	raw, err := env.gw.BuildAuthURL("write", "http://localhost/cb")
	require.NoError(t, err)

	q := parseAuthURL(t, raw).Query()
	assert.Equal(t, "http://localhost/cb", q.Get("extra"))
	assert.Equal(t, "15098253f3bb5b64b4b9906d59c65b7b", q.Get(paramSignature))
}

func TestRecordFrob(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()

	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "123-abc"))

	s, err := env.gw.Sessions().Load(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "123-abc", s.Frob)
	assert.Equal(t, LevelNone, s.PermissionLevel)
	assert.Equal(t, StateFrobPending, s.State())

	ok, err := env.gw.Sessions().HasFrob(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordFrob_RejectsEmpty(t *testing.T) {
	env := newTestGateway(t, nil)
	err := env.gw.RecordFrob(context.Background(), "sess", "")
	assert.True(t, errors.Is(err, ErrNoFrob))
	assert.Nil(t, env.rawSession(t, "sess"))
}

func TestRecordFrob_ReplacesEarlierFrob(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()

	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "first"))
	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "second"))

	s, err := env.gw.Sessions().Load(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "second", s.Frob)
}

func TestCompleteAuth_Success(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetToken, getTokenJSON)
	ctx := context.Background()

	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "123-abc"))
	s, err := env.gw.CompleteAuth(ctx, "sess")
	require.NoError(t, err)

	assert.Equal(t, "T", s.AuthToken)
	assert.Equal(t, LevelRead, s.PermissionLevel)
	assert.Equal(t, "123-abc", s.Frob)
	assert.Equal(t, StateAuthorized, s.State())
	require.NotNil(t, s.User)
	assert.Equal(t, "alice", s.User.Username)
	assert.Equal(t, "12345@N00", s.User.NSID)

	stored, err := env.gw.Sessions().Load(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, s, stored)

	// The frob parameter forces getToken to be signed.
	req := env.flickr.last(MethodGetToken)
	assert.Equal(t, "123-abc", req.Params.Get("frob"))
	assert.Equal(t, signatureOf(t, req.Params), req.Params.Get(paramSignature))
}

func TestCompleteAuth_GrantedPerms(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetToken, `{"auth":{"token":{"_content":"T2"},"perms":{"_content":"delete"}},"stat":"ok"}`)
	ctx := context.Background()

	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "f"))
	s, err := env.gw.CompleteAuth(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, LevelDelete, s.PermissionLevel)
	assert.Nil(t, s.User)
}

func TestCompleteAuth_WithoutFrob(t *testing.T) {
	env := newTestGateway(t, nil)

	_, err := env.gw.CompleteAuth(context.Background(), "sess")
	assert.True(t, errors.Is(err, ErrNoFrob))
	assert.Zero(t, env.flickr.calls(""))
	assert.Nil(t, env.rawSession(t, "sess"))
}

func TestCompleteAuth_FailedExchangeLeavesSessionUnchanged(t *testing.T) {
	bodies := map[string]string{
		"remote failure": `{"stat":"fail","code":108,"message":"Invalid frob"}`,
		"missing token":  `{"auth":{"perms":{"_content":"write"}},"stat":"ok"}`,
		"garbage":        `not json`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			env := newTestGateway(t, nil)
			env.flickr.on(MethodGetToken, body)
			ctx := context.Background()

			require.NoError(t, env.gw.RecordFrob(ctx, "sess", "123-abc"))
			before := env.rawSession(t, "sess")

			_, err := env.gw.CompleteAuth(ctx, "sess")
			require.Error(t, err)

			assert.Equal(t, before, env.rawSession(t, "sess"))
			s, err := env.gw.Sessions().Load(ctx, "sess")
			require.NoError(t, err)
			assert.Equal(t, StateFrobPending, s.State())
		})
	}
}

func TestCompleteAuth_TransportFailureLeavesSessionUnchanged(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, env.gw.RecordFrob(ctx, "sess", "123-abc"))
	before := env.rawSession(t, "sess")

	env.flickr.err = errors.New("dial tcp: timeout")
	_, err := env.gw.CompleteAuth(ctx, "sess")
	assert.True(t, errors.Is(err, ErrTransport))
	assert.Equal(t, before, env.rawSession(t, "sess"))
}

func TestCheckToken_RefreshesSession(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodCheckToken, `{"auth":{"token":{"_content":"token-sess"},"perms":{"_content":"write"},
		"user":{"nsid":"12345@N00","username":"alice2"}},"stat":"ok"}`)
	env.authorize(t, "sess", LevelRead)

	s, err := env.gw.CheckToken(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, LevelWrite, s.PermissionLevel)
	assert.Equal(t, "alice2", s.User.Username)

	req := env.flickr.last(MethodCheckToken)
	assert.Equal(t, "token-sess", req.Params.Get("auth_token"))
}

func TestCheckToken_InvalidTokenIsDropped(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodCheckToken, `{"stat":"fail","code":98,"message":"Invalid auth token"}`)
	env.authorize(t, "sess", LevelWrite)
	ctx := context.Background()

	_, err := env.gw.CheckToken(ctx, "sess")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	s, err := env.gw.Sessions().Load(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, s.AuthToken)
	assert.Equal(t, LevelNone, s.PermissionLevel)
	assert.Equal(t, StateFrobPending, s.State())
}

func TestCheckToken_NoToken(t *testing.T) {
	env := newTestGateway(t, nil)

	_, err := env.gw.CheckToken(context.Background(), "sess")
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.Zero(t, env.flickr.calls(""))
}

func TestClearSession(t *testing.T) {
	env := newTestGateway(t, nil)
	env.authorize(t, "sess", LevelDelete)
	ctx := context.Background()

	require.NoError(t, env.gw.ClearSession(ctx, "sess"))

	s, err := env.gw.Sessions().Load(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, StateUnauthenticated, s.State())
	assert.Nil(t, env.rawSession(t, "sess"))

	require.NoError(t, env.gw.ClearSession(ctx, "never-existed"))
}
