// ABOUTME: Tests for Invoke: guard, signing, discovery, decoding, error classification and history
// ABOUTME: All calls go to fakeFlickr; no network access is needed

package flickr

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchInfoJSON = `{"method":{"name":"flickr.photos.search","needslogin":0,"needssigning":0,"requiredperms":0,
	"description":{"_content":"Return a list of photos matching some criteria."}},
	"arguments":{"argument":[{"name":"api_key","optional":0,"_content":"Your API application key."},
	{"name":"text","optional":1,"_content":"A free text search."}]},"stat":"ok"}`

const searchResultJSON = `{"photos":{"page":1,"pages":1,"perpage":100,"total":1,
	"photo":[{"id":"5","owner":"12345@N00","title":"sunset"}]},"stat":"ok"}`

func TestNew_RequiresCredentials(t *testing.T) {
	ctx := context.Background()
	fake := newFakeFlickr()

	_, err := New(ctx, Options{APISecret: "s", Transport: fake, Sessions: nil})
	assert.True(t, errors.Is(err, ErrConfig))

	env := newTestGateway(t, nil)
	_, err = New(ctx, Options{APIKey: "k", Transport: fake, Sessions: env.sessions})
	assert.True(t, errors.Is(err, ErrConfig))

	_, err = New(ctx, Options{APIKey: "k", APISecret: "s", Sessions: env.sessions})
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestInvoke_InsufficientPermissionMakesNoCall(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()

	require.NoError(t, env.gw.Registry().Register(ctx, &MethodDefinition{
		Name:               "flickr.photos.search",
		RequiredParams:     []string{"api_key"},
		RequiredPermission: LevelWrite,
	}))
	env.authorize(t, "sess", LevelRead)

	resp, err := env.gw.Invoke(ctx, "photos.search", map[string]string{"text": "cats"}, CallOptions{SessionID: "sess"})
	assert.Nil(t, resp)
	require.True(t, errors.Is(err, ErrPermissionDenied))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.True(t, fe.PreFlight)
	assert.Zero(t, env.flickr.calls(""))
}

func TestInvoke_UnknownMethodWithDiscoveryDisabled(t *testing.T) {
	env := newTestGateway(t, func(o *Options) { o.Discovery = DiscoveryDisabled })

	_, err := env.gw.Invoke(context.Background(), "photos.search", nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrMethodNotFound))
	assert.Zero(t, env.flickr.calls(""))
}

func TestInvoke_LazyDiscovery(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.onFunc(MethodGetMethodInfo, func(p url.Values) string {
		if p.Get("method_name") != "flickr.photos.search" {
			return `{"stat":"fail","code":1,"message":"Method not found"}`
		}
		return searchInfoJSON
	})
	env.flickr.on("flickr.photos.search", searchResultJSON)
	ctx := context.Background()

	for range 2 {
		resp, err := env.gw.Invoke(ctx, "photos_search", map[string]string{"text": "sunset"}, CallOptions{})
		require.NoError(t, err)
		assert.Equal(t, "1", Text(resp.Map(), "photos", "total"))
		photos := List(resp.Map(), "photos", "photo")
		require.Len(t, photos, 1)
		photo, ok := photos[0].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "sunset", Text(photo, "title"))
	}
	assert.Equal(t, 1, env.flickr.calls(MethodGetMethodInfo))
	assert.Equal(t, 2, env.flickr.calls("flickr.photos.search"))

	req := env.flickr.last("flickr.photos.search")
	assert.Equal(t, http.MethodGet, req.Verb)
	assert.Equal(t, "api.flickr.com", req.Host)
	assert.Equal(t, DefaultAPIService, req.Path)
	assert.Equal(t, "json", req.Params.Get("format"))
	assert.Equal(t, "1", req.Params.Get("nojsoncallback"))
	assert.Equal(t, testAPIKey, req.Params.Get("api_key"))
	assert.Empty(t, req.Params.Get(paramSignature), "unsigned method carried a signature")

	def, err := env.gw.Registry().Resolve(ctx, "photos.search")
	require.NoError(t, err)
	assert.Equal(t, []string{"api_key"}, def.RequiredParams)
	assert.Equal(t, []string{"text"}, def.OptionalParams)
	assert.Equal(t, "Return a list of photos matching some criteria.", def.Description)
}

func TestInvoke_DiscoveryOfUnknownRemoteMethod(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetMethodInfo, `{"stat":"fail","code":1,"message":"Method \"flickr.nope\" not found"}`)

	_, err := env.gw.Invoke(context.Background(), "nope", nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrMethodNotFound))
	assert.Zero(t, env.flickr.calls("flickr.nope"))
}

func TestInvoke_DiscoveredWriteMethodIsSignedPost(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetMethodInfo, `{"method":{"name":"flickr.photos.addTags","needslogin":1,"needssigning":1,"requiredperms":2},
		"arguments":{"argument":{"name":"photo_id","optional":0}},"stat":"ok"}`)
	env.flickr.on("flickr.photos.addTags", `{"stat":"ok"}`)
	env.authorize(t, "sess", LevelWrite)
	ctx := context.Background()

	_, err := env.gw.Invoke(ctx, "photos.addTags", map[string]string{"photo_id": "5", "tags": "sea"}, CallOptions{SessionID: "sess"})
	require.NoError(t, err)

	req := env.flickr.last("flickr.photos.addTags")
	assert.Equal(t, http.MethodPost, req.Verb)
	assert.Equal(t, "token-sess", req.Params.Get("auth_token"))
	assert.Equal(t, signatureOf(t, req.Params), req.Params.Get(paramSignature))

	def, err := env.gw.Registry().Resolve(ctx, "photos.addTags")
	require.NoError(t, err)
	assert.Equal(t, []string{"photo_id"}, def.RequiredParams, "single argument object should decode as a list")
}

func TestInvoke_SignsWithSessionToken(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodTestLogin, `{"user":{"id":"12345@N00","username":{"_content":"alice"}},"stat":"ok"}`)
	env.authorize(t, "sess", LevelRead)

	resp, err := env.gw.Invoke(context.Background(), "test.login", nil, CallOptions{SessionID: "sess"})
	require.NoError(t, err)
	assert.Equal(t, "alice", Text(resp.Map(), "user", "username"))

	req := env.flickr.last(MethodTestLogin)
	require.NotNil(t, req)
	assert.Equal(t, "token-sess", req.Params.Get("auth_token"))
	sig := req.Params.Get(paramSignature)
	assert.Len(t, sig, 32)
	assert.Equal(t, signatureOf(t, req.Params), sig)

	last := env.gw.Last()
	require.NotNil(t, last)
	assert.Equal(t, sig, last.Signature)
}

func TestInvoke_CallerSignatureIsReplaced(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetFrob, `{"frob":{"_content":"1-2-3"},"stat":"ok"}`)

	_, err := env.gw.Invoke(context.Background(), "auth.getFrob", map[string]string{paramSignature: "forged"}, CallOptions{})
	require.NoError(t, err)

	req := env.flickr.last(MethodGetFrob)
	assert.NotEqual(t, "forged", req.Params.Get(paramSignature))
	assert.Equal(t, signatureOf(t, req.Params), req.Params.Get(paramSignature))
}

func TestInvoke_RemotePermissionFailure(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodTestLogin, `{"stat":"fail","code":99,"message":"Insufficient permissions"}`)
	env.authorize(t, "sess", LevelRead)

	resp, err := env.gw.Invoke(context.Background(), MethodTestLogin, nil, CallOptions{SessionID: "sess"})
	require.True(t, errors.Is(err, ErrPermissionDenied))
	require.NotNil(t, resp)
	assert.False(t, resp.Status.OK)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.False(t, fe.PreFlight)
	assert.Equal(t, 99, fe.Code)
	assert.Equal(t, "Insufficient permissions", fe.Message)
}

func TestInvoke_ConfiguredPermissionCode(t *testing.T) {
	env := newTestGateway(t, func(o *Options) { o.PermissionCode = 42 })
	env.flickr.on(MethodGetMethods, `{"stat":"fail","code":42,"message":"nope"}`)
	_, err := env.gw.Invoke(context.Background(), MethodGetMethods, nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	env.flickr.on(MethodGetMethods, `{"stat":"fail","code":99,"message":"nope"}`)
	_, err = env.gw.Invoke(context.Background(), MethodGetMethods, nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrRemote))
}

func TestInvoke_ErrorCodeClassification(t *testing.T) {
	tests := []struct {
		code int
		kind error
	}{
		{96, ErrInvalidSignature},
		{97, ErrMissingSignature},
		{98, ErrInvalidToken},
		{100, ErrInvalidAPIKey},
		{105, ErrServiceUnavailable},
		{116, ErrBadURL},
		{112, ErrMethodNotFound},
		{1, ErrRemote},
	}
	env := newTestGateway(t, nil)
	for _, tt := range tests {
		env.flickr.onFunc(MethodGetMethods, func(url.Values) string {
			return `{"stat":"fail","code":` + strconv.Itoa(tt.code) + `,"message":"m"}`
		})
		_, err := env.gw.Invoke(context.Background(), MethodGetMethods, nil, CallOptions{})
		assert.True(t, errors.Is(err, tt.kind), "code %d: %v", tt.code, err)
	}
}

func TestInvoke_TransportAndDecodeErrors(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()

	env.flickr.err = errors.New("connection refused")
	_, err := env.gw.Invoke(ctx, MethodGetMethods, nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrTransport))

	env.flickr.err = nil
	env.flickr.on(MethodGetMethods, `<html>oops</html>`)
	_, err = env.gw.Invoke(ctx, MethodGetMethods, nil, CallOptions{})
	require.True(t, errors.Is(err, ErrDecode))
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []byte(`<html>oops</html>`), fe.Body)
}

func TestInvoke_PHPFormat(t *testing.T) {
	env := newTestGateway(t, func(o *Options) { o.Format = FormatPHP })
	env.flickr.onFunc(MethodTestEcho, func(p url.Values) string {
		if p.Get("format") != "php_serial" {
			return "bad"
		}
		return `a:3:{s:4:"stat";s:2:"ok";s:6:"method";a:1:{s:8:"_content";s:16:"flickr.test.echo";}s:3:"foo";a:1:{s:8:"_content";s:3:"bar";}}`
	})
	require.NoError(t, env.gw.Registry().Register(context.Background(), &MethodDefinition{Name: MethodTestEcho}))

	resp, err := env.gw.Invoke(context.Background(), "test.echo", map[string]string{"foo": "bar"}, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, FormatPHP, resp.Format)
	assert.Equal(t, "bar", Text(resp.Map(), "foo"))
}

func TestInvoke_XMLFormat(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetMethods, `<?xml version="1.0" encoding="utf-8" ?>
<rsp stat="fail">
	<err code="105" msg="Service currently unavailable" />
</rsp>`)

	resp, err := env.gw.Invoke(context.Background(), MethodGetMethods, nil, CallOptions{Format: FormatXML})
	require.True(t, errors.Is(err, ErrServiceUnavailable))
	require.NotNil(t, resp.Node())
	assert.Equal(t, "rsp", resp.Node().Name)

	req := env.flickr.last(MethodGetMethods)
	assert.Empty(t, req.Params.Get("format"))
}

func TestInvoke_PathTemplate(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, env.gw.Registry().Register(ctx, &MethodDefinition{
		Name:           "flickr.custom.fetch",
		PathTemplate:   "/services/custom/{photo_id}/",
		RequiredParams: []string{"photo_id"},
	}))
	env.flickr.on("flickr.custom.fetch", `{"stat":"ok"}`)

	_, err := env.gw.Invoke(ctx, "custom.fetch", map[string]string{"photo_id": "a b"}, CallOptions{})
	require.NoError(t, err)

	req := env.flickr.last("flickr.custom.fetch")
	assert.Equal(t, "/services/custom/a b/", req.Path)
	assert.Equal(t, "https://api.flickr.com/services/custom/a%20b/?api_key=KEY&format=json&method=flickr.custom.fetch&nojsoncallback=1", req.URL())
	assert.False(t, req.Params.Has("photo_id"))
}

func TestInvoke_UnknownDomain(t *testing.T) {
	env := newTestGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, env.gw.Registry().Register(ctx, &MethodDefinition{Name: "flickr.x.y", Domain: "mirror"}))

	_, err := env.gw.Invoke(ctx, "x.y", nil, CallOptions{})
	assert.True(t, errors.Is(err, ErrConfig))
	assert.Zero(t, env.flickr.calls(""))
}

func TestInvoke_Hooks(t *testing.T) {
	var after []*Call
	env := newTestGateway(t, func(o *Options) {
		o.Hooks = []Hook{{
			Before: func(ctx context.Context, e *Envelope) error {
				if e.Params.Get("abort") == "1" {
					return errors.New("aborted by hook")
				}
				e.Params.Set("extras", "tags")
				return nil
			},
			After: func(ctx context.Context, c *Call) { after = append(after, c) },
		}}
	})
	env.flickr.on(MethodGetMethods, `{"stat":"ok"}`)
	ctx := context.Background()

	_, err := env.gw.Invoke(ctx, MethodGetMethods, map[string]string{"abort": "1"}, CallOptions{})
	require.Error(t, err)
	assert.Zero(t, env.flickr.calls(""))

	_, err = env.gw.Invoke(ctx, MethodGetMethods, nil, CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tags", env.flickr.last(MethodGetMethods).Params.Get("extras"))

	require.Len(t, after, 2)
	assert.Error(t, after[0].Err)
	assert.NoError(t, after[1].Err)
}

func TestInvoke_HistoryRecordsFailures(t *testing.T) {
	env := newTestGateway(t, func(o *Options) {
		o.HistorySize = 2
		o.Discovery = DiscoveryDisabled
	})
	env.flickr.on(MethodGetMethods, `{"stat":"ok"}`)
	ctx := context.Background()

	_, _ = env.gw.Invoke(ctx, MethodGetMethods, nil, CallOptions{})
	_, _ = env.gw.Invoke(ctx, "photos.search", nil, CallOptions{})
	_, _ = env.gw.Invoke(ctx, MethodGetMethods, nil, CallOptions{})

	recent := env.gw.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, MethodGetMethods, recent[0].Method)
	assert.NoError(t, recent[0].Err)
	assert.Equal(t, "flickr.photos.search", recent[1].Method)
	assert.True(t, errors.Is(recent[1].Err, ErrMethodNotFound))
	assert.NotEmpty(t, recent[1].ID)
	assert.Same(t, recent[0], env.gw.Last())
}

func TestInvoke_HistoryOmitsCredentials(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodTestLogin, `{"user":{"id":"12345@N00"},"stat":"ok"}`)
	env.flickr.on(MethodGetToken, `{"stat":"fail","code":108,"message":"Invalid frob"}`)
	env.authorize(t, "sess", LevelRead)
	ctx := context.Background()

	_, err := env.gw.Invoke(ctx, "test.login", nil, CallOptions{SessionID: "sess"})
	require.NoError(t, err)
	login := env.gw.Last()
	require.NotNil(t, login)
	assert.Equal(t, "sess", login.SessionID)
	assert.NotContains(t, login.Params, "auth_token")
	assert.Equal(t, MethodTestLogin, login.Params["method"])
	assert.NotEmpty(t, login.Signature)

	_, err = env.gw.Invoke(ctx, MethodGetToken, map[string]string{"frob": "123-abc"}, CallOptions{SkipPermissionCheck: true})
	require.Error(t, err)
	exchange := env.gw.Last()
	require.NotNil(t, exchange)
	assert.NotContains(t, exchange.Params, "frob")

	// The request on the wire still carried both.
	assert.Equal(t, "token-sess", env.flickr.last(MethodTestLogin).Params.Get("auth_token"))
	assert.Equal(t, "123-abc", env.flickr.last(MethodGetToken).Params.Get("frob"))
}

func TestInvoke_HistoryPerSession(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodGetFrob, `{"frob":{"_content":"1-2-3"},"stat":"ok"}`)
	ctx := context.Background()

	_, _ = env.gw.Invoke(ctx, MethodGetFrob, nil, CallOptions{SessionID: "a"})
	_, _ = env.gw.Invoke(ctx, MethodGetFrob, nil, CallOptions{SessionID: "b"})
	_, _ = env.gw.Invoke(ctx, MethodGetFrob, nil, CallOptions{SessionID: "a"})

	mine := env.gw.RecentFor("a")
	require.Len(t, mine, 2)
	for _, c := range mine {
		assert.Equal(t, "a", c.SessionID)
	}
	assert.Same(t, mine[0], env.gw.LastFor("a"))
	assert.Len(t, env.gw.RecentFor("b"), 1)
	assert.Empty(t, env.gw.RecentFor("c"))
	assert.Nil(t, env.gw.LastFor("c"))
}

func TestInvoke_OversizedPHPCountIsDecodeError(t *testing.T) {
	env := newTestGateway(t, func(o *Options) { o.Format = FormatPHP })
	env.flickr.on(MethodGetFrob, `a:9999999999999:{}`)

	_, err := env.gw.Invoke(context.Background(), MethodGetFrob, nil, CallOptions{})
	require.True(t, errors.Is(err, ErrDecode))
	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, []byte(`a:9999999999999:{}`), fe.Body)
}

func TestInvoke_SkipPermissionCheck(t *testing.T) {
	env := newTestGateway(t, nil)
	env.flickr.on(MethodTestLogin, `{"stat":"fail","code":98,"message":"Invalid auth token"}`)

	_, err := env.gw.Invoke(context.Background(), MethodTestLogin, nil, CallOptions{})
	require.True(t, errors.Is(err, ErrPermissionDenied))

	_, err = env.gw.Invoke(context.Background(), MethodTestLogin, nil, CallOptions{SkipPermissionCheck: true})
	assert.True(t, errors.Is(err, ErrInvalidToken))
	assert.Equal(t, 1, env.flickr.calls(MethodTestLogin))
}

func TestNew_EagerWarmsPreloadList(t *testing.T) {
	fake := newFakeFlickr()
	fake.on(MethodGetMethodInfo, searchInfoJSON)

	env := newTestGateway(t, func(o *Options) {
		o.Discovery = DiscoveryEager
		o.Preload = []string{"photos.search"}
		o.Transport = fake
	})
	assert.Equal(t, 1, fake.calls(MethodGetMethodInfo))
	assert.Contains(t, env.gw.Registry().List(context.Background()), "flickr.photos.search")
}

func TestNew_EagerWithoutPreloadListsMethods(t *testing.T) {
	fake := newFakeFlickr()
	fake.on(MethodGetMethods, `{"methods":{"method":[{"_content":"flickr.photos.search"}]},"stat":"ok"}`)
	fake.on(MethodGetMethodInfo, searchInfoJSON)

	env := newTestGateway(t, func(o *Options) {
		o.Discovery = DiscoveryEager
		o.Transport = fake
	})
	assert.Equal(t, 1, fake.calls(MethodGetMethods))
	assert.Contains(t, env.gw.Registry().List(context.Background()), "flickr.photos.search")
}
