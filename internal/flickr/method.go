// ABOUTME: MethodDefinition describes the calling contract of one Flickr API method
// ABOUTME: Includes name normalization and the bootstrap contracts needed before discovery

package flickr

import (
	"net/http"
	"slices"
	"strings"
	"time"
)

// Domains used in the host table.
const (
	DomainAPI    = "api"
	DomainAuth   = "auth"
	DomainUpload = "upload"
)

// Method names the gateway itself depends on.
const (
	MethodGetMethodInfo = "flickr.reflection.getMethodInfo"
	MethodGetMethods    = "flickr.reflection.getMethods"
	MethodGetToken      = "flickr.auth.getToken"
	MethodGetFrob       = "flickr.auth.getFrob"
	MethodCheckToken    = "flickr.auth.checkToken"
	MethodTestLogin     = "flickr.test.login"
	MethodTestEcho      = "flickr.test.echo"
)

const methodPrefix = "flickr."

// MethodDefinition is the calling contract of a remote method.
type MethodDefinition struct {
	Name               string    `cbor:"name"`
	Verb               string    `cbor:"verb"`
	Domain             string    `cbor:"domain"`
	PathTemplate       string    `cbor:"path,omitempty"`
	RequiredParams     []string  `cbor:"required,omitempty"`
	OptionalParams     []string  `cbor:"optional,omitempty"`
	RequiresLogin      bool      `cbor:"login"`
	RequiresSigning    bool      `cbor:"signing"`
	RequiredPermission Level     `cbor:"perms"`
	Description        string    `cbor:"description,omitempty"`
	ExpiresAt          time.Time `cbor:"expires_at"`
}

// Normalize fills defaults and enforces the contract invariants: a method
// that needs login needs at least read permission, and any method that needs
// permission is signed.
func (d *MethodDefinition) Normalize() {
	d.Name = NormalizeName(d.Name)
	switch strings.ToUpper(d.Verb) {
	case http.MethodPost:
		d.Verb = http.MethodPost
	default:
		d.Verb = http.MethodGet
	}
	if d.Domain == "" {
		d.Domain = DomainAPI
	}
	if d.RequiresLogin && d.RequiredPermission < LevelRead {
		d.RequiredPermission = LevelRead
	}
	if d.RequiredPermission > LevelNone {
		d.RequiresSigning = true
	}
	if slices.Contains(d.RequiredParams, "frob") || slices.Contains(d.OptionalParams, "frob") {
		d.RequiresSigning = true
	}
}

// Expired reports whether the definition's cache lifetime has passed.
func (d *MethodDefinition) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}

// clone returns a deep copy so callers never share slices with the registry.
func (d *MethodDefinition) clone() *MethodDefinition {
	c := *d
	c.RequiredParams = slices.Clone(d.RequiredParams)
	c.OptionalParams = slices.Clone(d.OptionalParams)
	return &c
}

// NormalizeName converts a caller-supplied method name to Flickr's dotted
// form: "photos_search", "photos.search" and "flickr.photos.search" are the
// same method.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.ReplaceAll(name, "_", ".")
	if !strings.HasPrefix(name, methodPrefix) {
		name = methodPrefix + name
	}
	return name
}

// BootstrapMethods returns the contracts registered at startup. They cover
// discovery and the auth exchange, which must work before any other method
// can be discovered.
func BootstrapMethods() []*MethodDefinition {
	return []*MethodDefinition{
		{
			Name:           MethodGetMethodInfo,
			Verb:           http.MethodGet,
			Domain:         DomainAPI,
			RequiredParams: []string{"api_key", "method_name"},
			Description:    "Returns information for a given Flickr API method.",
		},
		{
			Name:           MethodGetMethods,
			Verb:           http.MethodGet,
			Domain:         DomainAPI,
			RequiredParams: []string{"api_key"},
			Description:    "Returns a list of available Flickr API methods.",
		},
		{
			Name:            MethodGetFrob,
			Verb:            http.MethodGet,
			Domain:          DomainAPI,
			RequiredParams:  []string{"api_key"},
			RequiresSigning: true,
			Description:     "Returns a frob to be used during authentication.",
		},
		{
			Name:           MethodGetToken,
			Verb:           http.MethodGet,
			Domain:         DomainAPI,
			RequiredParams: []string{"api_key", "frob"},
			Description:    "Returns the auth token for the given frob, if one has been attached.",
		},
		{
			Name:            MethodCheckToken,
			Verb:            http.MethodGet,
			Domain:          DomainAPI,
			RequiredParams:  []string{"api_key", "auth_token"},
			RequiresSigning: true,
			Description:     "Returns the credentials attached to an authentication token.",
		},
		{
			Name:               MethodTestLogin,
			Verb:               http.MethodGet,
			Domain:             DomainAPI,
			RequiredParams:     []string{"api_key"},
			RequiresLogin:      true,
			RequiredPermission: LevelRead,
			Description:        "A testing method which checks if the caller is logged in then returns their username.",
		},
	}
}
