// ABOUTME: Gateway dispatches arbitrary Flickr method names to the remote API
// ABOUTME: Resolves the contract, checks permission, signs, calls, decodes and classifies

package flickr

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultScheme         = "https"
	DefaultAPIService     = "/services/rest/"
	DefaultAuthPath       = "/services/auth/"
	DefaultUploadPath     = "/services/upload/"
	DefaultPermissionCode = CodeInsufficientPerms
	DefaultHistorySize    = 16
)

// DefaultHosts is the domain table used when Options.Hosts is empty.
func DefaultHosts() map[string]string {
	return map[string]string{
		DomainAPI:    "api.flickr.com",
		DomainAuth:   "www.flickr.com",
		DomainUpload: "up.flickr.com",
	}
}

// Hook intercepts calls. Before runs after the envelope is signed and may
// abort the call by returning an error; After runs once the call is recorded.
type Hook struct {
	Before func(ctx context.Context, env *Envelope) error
	After  func(ctx context.Context, call *Call)
}

// Options configures a Gateway.
type Options struct {
	APIKey    string
	APISecret string

	Scheme     string
	Hosts      map[string]string
	APIService string
	AuthPath   string

	Format         Format
	Discovery      DiscoveryMode
	Preload        []string
	PermissionCode int
	CacheTTL       time.Duration
	HistorySize    int

	Transport Transport
	Cache     CacheStore
	Sessions  SessionStore
	Hooks     []Hook
	Logger    *slog.Logger
	Now       func() time.Time
}

// CallOptions adjusts a single Invoke.
type CallOptions struct {
	// SessionID selects whose auth token and permission level apply.
	SessionID string
	// SkipPermissionCheck bypasses the guard.
	SkipPermissionCheck bool
	// Format overrides the configured response format.
	Format Format
}

// Envelope is the request being built for one call.
type Envelope struct {
	Method    *MethodDefinition
	Params    url.Values
	Signature string
	Request   *Request
}

// Gateway is the single entry point to the Flickr API.
type Gateway struct {
	apiKey    string
	apiSecret string

	scheme     string
	hosts      map[string]string
	apiService string
	authPath   string

	format         Format
	permissionCode int

	registry  *Registry
	sessions  *Sessions
	transport Transport
	history   *History
	hooks     []Hook
	now       func() time.Time
	logger    *slog.Logger
}

// New validates opts, registers the bootstrap methods and, in eager mode,
// warms the registry.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: api_key is required", ErrConfig)
	}
	if opts.APISecret == "" {
		return nil, fmt.Errorf("%w: api_secret is required", ErrConfig)
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: transport is required", ErrConfig)
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("%w: session store is required", ErrConfig)
	}

	historySize := opts.HistorySize
	if historySize == 0 {
		historySize = DefaultHistorySize
	}

	g := &Gateway{
		apiKey:         opts.APIKey,
		apiSecret:      opts.APISecret,
		scheme:         opts.Scheme,
		hosts:          DefaultHosts(),
		apiService:     opts.APIService,
		authPath:       opts.AuthPath,
		format:         opts.Format,
		permissionCode: opts.PermissionCode,
		sessions:       NewSessions(opts.Sessions),
		transport:      opts.Transport,
		history:        NewHistory(historySize),
		hooks:          opts.Hooks,
		now:            opts.Now,
		logger:         opts.Logger,
	}
	maps.Copy(g.hosts, opts.Hosts)
	if g.scheme == "" {
		g.scheme = DefaultScheme
	}
	if g.apiService == "" {
		g.apiService = DefaultAPIService
	}
	if g.authPath == "" {
		g.authPath = DefaultAuthPath
	}
	if g.format == "" {
		g.format = FormatJSON
	}
	if g.permissionCode == 0 {
		g.permissionCode = DefaultPermissionCode
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = g.logger.With("component", "flickr")

	g.registry = NewRegistry(RegistryOptions{
		Cache:     opts.Cache,
		TTL:       opts.CacheTTL,
		Mode:      opts.Discovery,
		Discovery: g,
		Now:       g.now,
		Logger:    opts.Logger,
	})

	for _, def := range BootstrapMethods() {
		if err := g.registry.Register(ctx, def); err != nil {
			g.logger.Warn("registering bootstrap method failed", "method", def.Name, "error", err)
		}
	}

	if g.registry.Mode() == DiscoveryEager {
		if err := g.registry.Warm(ctx, opts.Preload); err != nil {
			g.logger.Warn("warming method registry", "error", err)
		}
	}

	return g, nil
}

// Registry returns the gateway's method registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Sessions returns the gateway's auth state store.
func (g *Gateway) Sessions() *Sessions { return g.sessions }

// Last returns the most recent call, or nil.
func (g *Gateway) Last() *Call { return g.history.Last() }

// Recent returns recent calls, newest first.
func (g *Gateway) Recent() []*Call { return g.history.Recent() }

// RecentFor returns the recent calls made for sessionID, newest first.
func (g *Gateway) RecentFor(sessionID string) []*Call {
	var out []*Call
	for _, c := range g.history.Recent() {
		if c.SessionID == sessionID {
			out = append(out, c)
		}
	}
	return out
}

// LastFor returns the most recent call made for sessionID, or nil.
func (g *Gateway) LastFor(sessionID string) *Call {
	for _, c := range g.history.Recent() {
		if c.SessionID == sessionID {
			return c
		}
	}
	return nil
}

// Invoke calls the Flickr method name with params. Every call, failed or
// not, is recorded in the gateway's history. When Flickr itself reports a
// failure the decoded response is returned alongside the error.
func (g *Gateway) Invoke(ctx context.Context, name string, params map[string]string, opts CallOptions) (*Response, error) {
	call := &Call{
		ID:        uuid.NewString(),
		SessionID: opts.SessionID,
		Method:    NormalizeName(name),
		Params:    redact(params),
		Options:   opts,
		Started:   g.now(),
	}
	resp, err := g.invoke(ctx, call, params, opts)
	call.Response = resp
	call.Err = err
	call.Duration = g.now().Sub(call.Started)
	g.record(ctx, call)
	return resp, err
}

func (g *Gateway) invoke(ctx context.Context, call *Call, params map[string]string, opts CallOptions) (*Response, error) {
	def, err := g.registry.Resolve(ctx, call.Method)
	if err != nil {
		return nil, err
	}

	session, err := g.sessions.Load(ctx, opts.SessionID)
	if err != nil {
		return nil, err
	}
	if !opts.SkipPermissionCheck && !CheckForMethod(session, def) {
		return nil, &Error{
			Kind:      ErrPermissionDenied,
			Method:    def.Name,
			Message:   fmt.Sprintf("requires %s, session has %s", def.RequiredPermission, session.PermissionLevel),
			PreFlight: true,
		}
	}

	format := g.format
	if opts.Format != "" {
		format = opts.Format
	}
	decoder := DecoderFor(format)

	env, err := g.envelope(def, params, session, decoder)
	if err != nil {
		return nil, err
	}
	call.Params = redact(flatten(env.Params))
	call.Signature = env.Signature

	for _, h := range g.hooks {
		if h.Before == nil {
			continue
		}
		if err := h.Before(ctx, env); err != nil {
			return nil, fmt.Errorf("before hook: %w", err)
		}
	}

	g.logger.Debug("calling flickr", "method", def.Name, "verb", env.Request.Verb, "host", env.Request.Host, "api_sig", env.Signature)
	body, err := g.transport.Execute(ctx, env.Request)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Method: def.Name, Body: body, Err: err}
	}

	data, status, err := decoder.Decode(body)
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Method: def.Name, Body: body, Err: err}
	}
	resp := &Response{Method: def.Name, Format: format, Body: body, Data: data, Status: status}

	if status.Present && !status.OK {
		return resp, &Error{
			Kind:    kindForCode(status.Code, g.permissionCode),
			Method:  def.Name,
			Code:    status.Code,
			Message: status.Message,
			Body:    body,
		}
	}
	return resp, nil
}

// envelope builds the parameter set, signs it when required and resolves the
// target host and path.
func (g *Gateway) envelope(def *MethodDefinition, params map[string]string, session *AuthSession, decoder Decoder) (*Envelope, error) {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Del(paramSignature)
	if def.Domain == DomainAPI {
		values.Set("method", def.Name)
	}
	values.Set("api_key", g.apiKey)
	for k, v := range decoder.Params() {
		values.Set(k, v)
	}

	host, ok := g.hosts[def.Domain]
	if !ok || host == "" {
		return nil, &Error{Kind: ErrConfig, Method: def.Name, Message: "no host for domain " + def.Domain}
	}
	path := g.pathFor(def, values)

	env := &Envelope{Method: def}
	if def.RequiresSigning {
		if session != nil && session.AuthToken != "" {
			values.Set("auth_token", session.AuthToken)
		}
		sig, err := signValues(g.apiSecret, values)
		if err != nil {
			return nil, err
		}
		values.Set(paramSignature, sig)
		env.Signature = sig
	}

	env.Params = values
	env.Request = &Request{
		Verb:   def.Verb,
		Scheme: g.scheme,
		Host:   host,
		Path:   path,
		Params: values,
	}
	return env, nil
}

// pathFor substitutes {name} placeholders in the method's path template.
// Substituted params are removed from the query. Escaping happens when the
// request URL is rendered.
func (g *Gateway) pathFor(def *MethodDefinition, values url.Values) string {
	path := def.PathTemplate
	if path == "" {
		switch def.Domain {
		case DomainUpload:
			path = DefaultUploadPath
		default:
			path = g.apiService
		}
	}
	for strings.Contains(path, "{") {
		start := strings.Index(path, "{")
		end := strings.Index(path[start:], "}")
		if end < 0 {
			break
		}
		key := path[start+1 : start+end]
		v := values.Get(key)
		values.Del(key)
		path = path[:start] + v + path[start+end+1:]
	}
	return path
}

func (g *Gateway) record(ctx context.Context, call *Call) {
	g.history.Add(call)
	if call.Err != nil {
		g.logger.Debug("flickr call failed", "method", call.Method, "error", call.Err)
	}
	for _, h := range g.hooks {
		if h.After != nil {
			h.After(ctx, call)
		}
	}
}

func flatten(values url.Values) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
