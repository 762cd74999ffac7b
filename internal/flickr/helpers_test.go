// ABOUTME: Test doubles shared by the flickr package tests
// ABOUTME: fakeFlickr answers transport calls by method name and records every request

package flickr

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/flickr-gateway/internal/store"
)

const (
	testAPIKey    = "KEY"
	testAPISecret = "SECRET"
)

// fakeFlickr is a Transport that dispatches on the "method" parameter.
// Unknown methods get Flickr's own "method not found" failure.
type fakeFlickr struct {
	mu       sync.Mutex
	handlers map[string]func(params url.Values) string
	requests []*Request
	err      error
}

func newFakeFlickr() *fakeFlickr {
	return &fakeFlickr{handlers: make(map[string]func(url.Values) string)}
}

// on registers a fixed response body for method.
func (f *fakeFlickr) on(method, body string) {
	f.onFunc(method, func(url.Values) string { return body })
}

func (f *fakeFlickr) onFunc(method string, h func(params url.Values) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeFlickr) Execute(ctx context.Context, req *Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	h := f.handlers[req.Params.Get("method")]
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if h == nil {
		return []byte(`{"stat":"fail","code":112,"message":"Method \"` + req.Params.Get("method") + `\" not found"}`), nil
	}
	return []byte(h(req.Params)), nil
}

// calls returns how many requests were made for method; "" counts all.
func (f *fakeFlickr) calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if method == "" {
		return len(f.requests)
	}
	n := 0
	for _, r := range f.requests {
		if r.Params.Get("method") == method {
			n++
		}
	}
	return n
}

// last returns the most recent request for method.
func (f *fakeFlickr) last(method string) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Params.Get("method") == method {
			return f.requests[i]
		}
	}
	return nil
}

type testEnv struct {
	gw       *Gateway
	flickr   *fakeFlickr
	cache    *store.MemoryCache
	sessions *store.MemorySessions
}

// newTestGateway builds a Gateway over in-memory stores and a fakeFlickr.
// mutate may adjust the options before construction.
func newTestGateway(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()

	env := &testEnv{
		flickr:   newFakeFlickr(),
		cache:    store.NewMemoryCache(100),
		sessions: store.NewMemorySessions(0),
	}
	t.Cleanup(env.cache.Close)

	opts := Options{
		APIKey:    testAPIKey,
		APISecret: testAPISecret,
		Discovery: DiscoveryLazy,
		CacheTTL:  time.Hour,
		Transport: env.flickr,
		Cache:     env.cache,
		Sessions:  env.sessions,
	}
	if mutate != nil {
		mutate(&opts)
	}

	gw, err := New(context.Background(), opts)
	require.NoError(t, err)
	env.gw = gw
	return env
}

// authorize stores an authorized session directly.
func (e *testEnv) authorize(t *testing.T, sessionID string, level Level) {
	t.Helper()
	require.NoError(t, e.gw.Sessions().Save(context.Background(), sessionID, &AuthSession{
		PermissionLevel: level,
		Frob:            "frob-" + sessionID,
		AuthToken:       "token-" + sessionID,
		User:            &User{NSID: "12345@N00", Username: "alice"},
	}))
}

// rawSession returns the stored bytes of a session, nil when absent.
func (e *testEnv) rawSession(t *testing.T, sessionID string) []byte {
	t.Helper()
	data, err := e.sessions.Read(context.Background(), sessionID, SessionNamespace)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return data
}

// signatureOf recomputes the signature a request should carry.
func signatureOf(t *testing.T, params url.Values) string {
	t.Helper()
	sig, err := signValues(testAPISecret, params)
	require.NoError(t, err)
	return sig
}
