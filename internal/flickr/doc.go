// Package flickr is a dynamic client for the Flickr REST API.
//
// A Gateway resolves any method name to its calling contract through a
// Registry, checks the session's permission level, signs the request with
// the shared secret and decodes the response in the configured format.
// Contracts for unknown methods are discovered with
// flickr.reflection.getMethodInfo and cached.
//
// Sessions move through three states: unauthenticated, frob pending after
// Flickr's auth callback, and authorized once the frob has been exchanged
// for a token with CompleteAuth.
package flickr
