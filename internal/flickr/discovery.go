// ABOUTME: Remote method discovery via Flickr's reflection methods
// ABOUTME: Turns reflection.getMethodInfo responses into MethodDefinitions

package flickr

import (
	"context"
	"errors"
	"net/http"
)

// codeReflectionNotFound is what reflection.getMethodInfo returns for an
// unknown method name.
const codeReflectionNotFound = 1

// Describe asks Flickr for the calling contract of name.
func (g *Gateway) Describe(ctx context.Context, name string) (*MethodDefinition, error) {
	resp, err := g.Invoke(ctx, MethodGetMethodInfo, map[string]string{"method_name": name}, CallOptions{
		SkipPermissionCheck: true,
		Format:              FormatJSON,
	})
	if err != nil {
		var fe *Error
		if errors.As(err, &fe) && fe.Code == codeReflectionNotFound {
			return nil, &Error{Kind: ErrMethodNotFound, Method: name, Code: fe.Code, Message: fe.Message}
		}
		return nil, err
	}

	def, err := parseMethodInfo(resp.Map())
	if err != nil {
		return nil, &Error{Kind: ErrDecode, Method: MethodGetMethodInfo, Body: resp.Body, Err: err}
	}
	if def.Name == "" {
		def.Name = name
	}
	return def, nil
}

// ListMethods returns every method name Flickr reports.
func (g *Gateway) ListMethods(ctx context.Context) ([]string, error) {
	resp, err := g.Invoke(ctx, MethodGetMethods, nil, CallOptions{
		SkipPermissionCheck: true,
		Format:              FormatJSON,
	})
	if err != nil {
		return nil, err
	}

	m := resp.Map()
	if _, ok := Lookup(m, "methods"); !ok {
		return nil, &Error{Kind: ErrDecode, Method: MethodGetMethods, Body: resp.Body, Err: errors.New("response has no methods element")}
	}
	var names []string
	for _, item := range List(m, "methods", "method") {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if name := Text(entry, "_content"); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func parseMethodInfo(m map[string]any) (*MethodDefinition, error) {
	if _, ok := Lookup(m, "method"); !ok {
		return nil, errors.New("response has no method element")
	}

	perms := Level(Int(m, "method", "requiredperms"))
	if !perms.Valid() {
		perms = LevelDelete
	}
	def := &MethodDefinition{
		Name:               Text(m, "method", "name"),
		Verb:               http.MethodGet,
		Domain:             DomainAPI,
		RequiresLogin:      Int(m, "method", "needslogin") == 1,
		RequiresSigning:    Int(m, "method", "needssigning") == 1,
		RequiredPermission: perms,
		Description:        Text(m, "method", "description"),
	}
	// Flickr only accepts write and delete calls over POST.
	if def.RequiredPermission >= LevelWrite {
		def.Verb = http.MethodPost
	}

	for _, item := range List(m, "arguments", "argument") {
		arg, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := Text(arg, "name")
		if name == "" {
			continue
		}
		if Int(arg, "optional") == 1 {
			def.OptionalParams = append(def.OptionalParams, name)
		} else {
			def.RequiredParams = append(def.RequiredParams, name)
		}
	}
	return def, nil
}
