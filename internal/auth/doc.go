// Package auth gives each visitor of the hosting server a session identity
// and completes the Flickr frob exchange on its behalf.
//
// # Sessions
//
// Every request is assigned a session ID. Browsers carry it in a signed
// cookie; API clients may send the same token as a bearer header:
//
//	Authorization: Bearer <token>
//
// Tokens are HS256 JWTs whose "sub" claim is the session ID, signed with
// session.secret from the configuration. A missing or stale cookie gets a
// fresh session; an invalid bearer token is rejected with 401.
//
// The session ID keys the Flickr auth state (frob, token, permission level)
// kept by the flickr package. It is not itself a Flickr credential.
//
// # Frob Exchange
//
// FrobMiddleware watches every request for a ?frob= query parameter. When one
// is present it records the frob for the current session and immediately
// exchanges it for a token. The outcome is attached to the request context:
//
//	status := auth.StatusFromContext(r.Context())
//	if status != nil && status.Authorized() {
//		// status.Session holds the new token and permission level
//	}
//
// A failed exchange never aborts the request; handlers decide how to report it.
//
// # Middleware Order
//
//	r.Use(auth.SessionMiddleware(signer, cookieOpts, logger))
//	r.Use(auth.FrobMiddleware(gateway, logger))
//
// # Logging
//
// Authentication failures are logged at warn with a "reason" attribute.
// Frobs and tokens are never logged.
package auth
