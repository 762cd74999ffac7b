// Package gateway hosts the Flickr client behind an HTTP server.
//
// # Overview
//
// The Gateway struct owns the storage backends, the flickr.Gateway built on
// top of them, and a chi router. It is the only place the three hosting-side
// Flickr operations are called: BuildAuthURL, RecordFrob and CompleteAuth.
//
// # Routes
//
//   - GET /health - Liveness check (no session)
//   - GET /auth/flickr - Redirect to Flickr with the configured perms
//   - GET /auth/flickr/{perms} - Redirect to Flickr asking for read, write or delete
//   - GET /auth/flickr/callback - Frob callback; redirects to extra on success
//   - GET /auth/session - Current session state, perms and user
//   - DELETE /auth/session - Forget the session's frob and token
//   - POST /auth/check - Re-validate the token with Flickr
//   - POST /auth/token - Bearer token for the current session
//   - GET|POST /api/call/{method} - Invoke any Flickr method
//   - GET /api/calls - Recent calls, newest first
//   - GET /api/calls/last - Most recent call
//   - GET /methods - Known methods (?remote=1 lists Flickr's)
//   - GET /methods/{name} - One method's contract, discovered if needed
//   - DELETE /methods - Clear the method cache
//
// Method pages are Markdown rendered to HTML with goldmark. Send
// "Accept: application/json" to get JSON instead.
//
// # Sessions
//
// Every route except /health runs behind auth.SessionMiddleware and
// auth.FrobMiddleware, so a ?frob= parameter on any URL completes the
// exchange for the caller's session.
//
// # Errors
//
// Failed calls return {"error": ..., "code": N, "preflight": bool}. The HTTP
// status follows the error kind: unknown methods are 404, permission
// failures 403 (preflight distinguishes the local guard from Flickr's own
// code), invalid tokens 401 and remote or transport failures 502.
//
// # Lifecycle
//
//	gw, err := gateway.New(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
package gateway
