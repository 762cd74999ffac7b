// ABOUTME: HTTP API handlers for the Flickr auth flow, the call proxy and call diagnostics
// ABOUTME: Maps flickr error kinds onto HTTP status codes with JSON error bodies

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/2389/flickr-gateway/internal/auth"
	"github.com/2389/flickr-gateway/internal/flickr"
)

// Query parameters consumed by the gateway instead of being forwarded.
const (
	paramFormat = "format"
	paramExtra  = "extra"
)

// reservedParams are set by the Flickr client itself and never forwarded.
var reservedParams = map[string]bool{
	"api_key":        true,
	"api_sig":        true,
	"auth_token":     true,
	"method":         true,
	"nojsoncallback": true,
	paramFormat:      true,
	auth.FrobParam:   true,
}

// UserResponse is the JSON form of a Flickr user.
type UserResponse struct {
	NSID     string `json:"nsid"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullname,omitempty"`
}

// SessionResponse is the JSON response for GET /auth/session.
type SessionResponse struct {
	State string        `json:"state"`
	Perms string        `json:"perms"`
	User  *UserResponse `json:"user,omitempty"`
}

// CallResponse is one entry of GET /api/calls.
type CallResponse struct {
	ID         string            `json:"id"`
	Method     string            `json:"method"`
	Params     map[string]string `json:"params,omitempty"`
	Format     string            `json:"format,omitempty"`
	Started    string            `json:"started"`
	DurationMS int64             `json:"duration_ms"`
	OK         bool              `json:"ok"`
	Error      string            `json:"error,omitempty"`
	Code       int               `json:"code,omitempty"`
	PreFlight  bool              `json:"preflight,omitempty"`
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      int    `json:"code,omitempty"`
	PreFlight bool   `json:"preflight,omitempty"`
}

// handleAuthRedirect handles GET /auth/flickr and GET /auth/flickr/{perms}.
// It redirects the browser to Flickr's authorization page. extra defaults to
// the configured base URL and comes back on the callback.
func (g *Gateway) handleAuthRedirect(w http.ResponseWriter, r *http.Request) {
	perms := chi.URLParam(r, "perms")
	if perms == "" {
		perms = g.config.Flickr.Perms
	}
	extra := r.URL.Query().Get(paramExtra)
	if extra == "" {
		extra = g.config.Server.BaseURL
	}

	target, err := g.flickr.BuildAuthURL(perms, extra)
	if err != nil {
		g.logger.Error("building auth url", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "cannot build auth url")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleAuthCallback handles GET /auth/flickr/callback. The frob middleware
// has already exchanged the frob by the time this runs.
func (g *Gateway) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	status := auth.StatusFromContext(r.Context())
	if status == nil {
		g.sendJSONError(w, http.StatusBadRequest, "missing frob")
		return
	}
	if !status.Authorized() {
		g.sendFlickrError(w, status.Err)
		return
	}
	http.Redirect(w, r, g.callbackTarget(r.URL.Query().Get(paramExtra)), http.StatusFound)
}

// callbackTarget returns where to send the browser after a successful
// exchange. Only local paths and URLs under the base URL are honored.
func (g *Gateway) callbackTarget(extra string) string {
	fallback := g.config.Server.BaseURL
	if fallback == "" {
		fallback = "/"
	}
	if extra == "" {
		return fallback
	}
	if strings.HasPrefix(extra, "/") && !strings.HasPrefix(extra, "//") {
		return extra
	}
	base := g.config.Server.BaseURL
	if base == "" {
		return fallback
	}
	target, err := url.Parse(extra)
	if err != nil {
		return fallback
	}
	baseURL, err := url.Parse(base)
	if err != nil || target.Scheme != baseURL.Scheme || target.Host != baseURL.Host {
		return fallback
	}
	return extra
}

// handleGetSession handles GET /auth/session.
func (g *Gateway) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := g.flickr.Sessions().Load(r.Context(), auth.SessionIDFromContext(r.Context()))
	if err != nil {
		g.logger.Error("loading session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, sessionResponse(session))
}

// handleClearSession handles DELETE /auth/session.
func (g *Gateway) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := g.flickr.ClearSession(r.Context(), auth.SessionIDFromContext(r.Context())); err != nil {
		g.logger.Error("clearing session", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCheckToken handles POST /auth/check by asking Flickr whether the
// session's token is still valid.
func (g *Gateway) handleCheckToken(w http.ResponseWriter, r *http.Request) {
	session, err := g.flickr.CheckToken(r.Context(), auth.SessionIDFromContext(r.Context()))
	if err != nil {
		g.sendFlickrError(w, err)
		return
	}
	g.sendJSON(w, http.StatusOK, sessionResponse(session))
}

// handleIssueToken handles POST /auth/token. It returns a bearer token naming
// the current session so API clients can reuse a browser-authorized session.
func (g *Gateway) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	token, err := g.signer.Issue(auth.SessionIDFromContext(r.Context()), g.config.Session.MaxAge)
	if err != nil {
		g.logger.Error("issuing session token", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int64(g.config.Session.MaxAge / time.Second),
	})
}

// handleCall handles GET|POST /api/call/{method}. Query and form values are
// forwarded as method parameters; ?format= picks the response format.
func (g *Gateway) handleCall(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}

	opts := flickr.CallOptions{SessionID: auth.SessionIDFromContext(r.Context())}
	if name := r.Form.Get(paramFormat); name != "" {
		format, ok := flickr.ParseFormat(name)
		if !ok {
			g.sendJSONError(w, http.StatusBadRequest, "unknown format "+name)
			return
		}
		opts.Format = format
	}

	params := make(map[string]string, len(r.Form))
	for k, vs := range r.Form {
		if reservedParams[k] || len(vs) == 0 {
			continue
		}
		params[k] = vs[0]
	}

	resp, err := g.flickr.Invoke(r.Context(), chi.URLParam(r, "method"), params, opts)
	if err != nil {
		g.sendFlickrError(w, err)
		return
	}
	g.writeFlickrResponse(w, resp)
}

// writeFlickrResponse relays a successful Flickr response. JSON, XML and raw
// bodies pass through untouched; php_serial is re-encoded as JSON.
func (g *Gateway) writeFlickrResponse(w http.ResponseWriter, resp *flickr.Response) {
	switch resp.Format {
	case flickr.FormatPHP:
		g.sendJSON(w, http.StatusOK, resp.Data)
		return
	case flickr.FormatXML:
		w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	case flickr.FormatRaw:
		w.Header().Set("Content-Type", "application/octet-stream")
	default:
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.Body)
}

// handleListCalls handles GET /api/calls, newest first.
func (g *Gateway) handleListCalls(w http.ResponseWriter, r *http.Request) {
	calls := g.flickr.RecentFor(auth.SessionIDFromContext(r.Context()))
	response := make([]CallResponse, 0, len(calls))
	for _, c := range calls {
		response = append(response, callResponse(c))
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleLastCall handles GET /api/calls/last.
func (g *Gateway) handleLastCall(w http.ResponseWriter, r *http.Request) {
	last := g.flickr.LastFor(auth.SessionIDFromContext(r.Context()))
	if last == nil {
		g.sendJSONError(w, http.StatusNotFound, "no calls recorded")
		return
	}
	g.sendJSON(w, http.StatusOK, callResponse(last))
}

func sessionResponse(s *flickr.AuthSession) SessionResponse {
	resp := SessionResponse{
		State: string(s.State()),
		Perms: s.PermissionLevel.String(),
	}
	if s.User != nil {
		resp.User = &UserResponse{NSID: s.User.NSID, Username: s.User.Username, FullName: s.User.FullName}
	}
	return resp
}

func callResponse(c *flickr.Call) CallResponse {
	resp := CallResponse{
		ID:         c.ID,
		Method:     c.Method,
		Params:     c.Params,
		Format:     string(c.Options.Format),
		Started:    c.Started.UTC().Format(time.RFC3339),
		DurationMS: c.Duration.Milliseconds(),
		OK:         c.Err == nil,
	}
	if c.Err != nil {
		resp.Error = c.Err.Error()
		var fe *flickr.Error
		if errors.As(c.Err, &fe) {
			resp.Code = fe.Code
			resp.PreFlight = fe.PreFlight
		}
	}
	return resp
}

// statusForError maps a flickr error kind onto an HTTP status.
func statusForError(err error) int {
	switch {
	case errors.Is(err, flickr.ErrMethodNotFound):
		return http.StatusNotFound
	case errors.Is(err, flickr.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, flickr.ErrInvalidToken), errors.Is(err, flickr.ErrNoFrob):
		return http.StatusUnauthorized
	case errors.Is(err, flickr.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, flickr.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, flickr.ErrConfig):
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// sendFlickrError writes err as a JSON error with the remote code, if any.
func (g *Gateway) sendFlickrError(w http.ResponseWriter, err error) {
	body := ErrorResponse{Error: "unknown error"}
	if err != nil {
		body.Error = err.Error()
	}
	var fe *flickr.Error
	if errors.As(err, &fe) {
		body.Code = fe.Code
		body.PreFlight = fe.PreFlight
	}
	g.sendJSON(w, statusForError(err), body)
}

// sendJSON writes v as a JSON response.
func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, ErrorResponse{Error: message})
}
