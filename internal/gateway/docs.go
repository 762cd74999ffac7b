// ABOUTME: Method documentation pages rendered from Markdown with goldmark
// ABOUTME: Lists known methods, describes one method's contract, and invalidates the registry

package gateway

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/flickr-gateway/internal/flickr"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Content}}
</body>
</html>
`))

// MethodResponse is the JSON form of a method contract.
type MethodResponse struct {
	Name               string   `json:"name"`
	Verb               string   `json:"verb"`
	Domain             string   `json:"domain"`
	RequiredParams     []string `json:"required_params"`
	OptionalParams     []string `json:"optional_params"`
	RequiresLogin      bool     `json:"requires_login"`
	RequiresSigning    bool     `json:"requires_signing"`
	RequiredPermission string   `json:"required_permission"`
	Description        string   `json:"description,omitempty"`
}

// wantsJSON reports whether the client asked for JSON rather than HTML.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// handleListMethods handles GET /methods. ?remote=1 asks Flickr for its full
// method list instead of listing what the registry already knows.
func (g *Gateway) handleListMethods(w http.ResponseWriter, r *http.Request) {
	var names []string
	if r.URL.Query().Get("remote") == "1" {
		remote, err := g.flickr.ListMethods(r.Context())
		if err != nil {
			g.sendFlickrError(w, err)
			return
		}
		names = remote
	} else {
		names = g.flickr.Registry().List(r.Context())
	}
	sort.Strings(names)

	if wantsJSON(r) {
		g.sendJSON(w, http.StatusOK, names)
		return
	}
	g.renderMarkdown(w, "Flickr methods", methodListMarkdown(names))
}

// handleDescribeMethod handles GET /methods/{name}. The registry discovers
// the method if it is not known yet.
func (g *Gateway) handleDescribeMethod(w http.ResponseWriter, r *http.Request) {
	def, err := g.flickr.Registry().Resolve(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		g.sendFlickrError(w, err)
		return
	}

	if wantsJSON(r) {
		g.sendJSON(w, http.StatusOK, NewMethodResponse(def))
		return
	}
	g.renderMarkdown(w, def.Name, methodMarkdown(def))
}

// handleInvalidateMethods handles DELETE /methods.
func (g *Gateway) handleInvalidateMethods(w http.ResponseWriter, r *http.Request) {
	if err := g.flickr.Registry().Invalidate(r.Context()); err != nil {
		g.logger.Error("invalidating method registry", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NewMethodResponse converts a method definition to its JSON form.
func NewMethodResponse(def *flickr.MethodDefinition) MethodResponse {
	return MethodResponse{
		Name:               def.Name,
		Verb:               def.Verb,
		Domain:             def.Domain,
		RequiredParams:     nonNil(def.RequiredParams),
		OptionalParams:     nonNil(def.OptionalParams),
		RequiresLogin:      def.RequiresLogin,
		RequiresSigning:    def.RequiresSigning,
		RequiredPermission: def.RequiredPermission.String(),
		Description:        def.Description,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func methodListMarkdown(names []string) []byte {
	var b bytes.Buffer
	b.WriteString("# Flickr methods\n\n")
	if len(names) == 0 {
		b.WriteString("No methods known yet.\n")
		return b.Bytes()
	}
	for _, name := range names {
		fmt.Fprintf(&b, "- [%s](/methods/%s)\n", name, url.PathEscape(name))
	}
	return b.Bytes()
}

func methodMarkdown(def *flickr.MethodDefinition) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n\n", def.Name)
	if def.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", def.Description)
	}
	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| HTTP verb | `%s` |\n", def.Verb)
	fmt.Fprintf(&b, "| Permission | `%s` |\n", def.RequiredPermission)
	fmt.Fprintf(&b, "| Login | %t |\n", def.RequiresLogin)
	fmt.Fprintf(&b, "| Signed | %t |\n\n", def.RequiresSigning)

	writeParams := func(title string, params []string) {
		if len(params) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, p := range params {
			fmt.Fprintf(&b, "- `%s`\n", p)
		}
		b.WriteString("\n")
	}
	writeParams("Required arguments", def.RequiredParams)
	writeParams("Optional arguments", def.OptionalParams)
	return b.Bytes()
}

// renderMarkdown converts md to HTML and writes it inside the docs page.
func (g *Gateway) renderMarkdown(w http.ResponseWriter, title string, md []byte) {
	var htmlBuf bytes.Buffer
	if err := markdown.Convert(md, &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		htmlBuf.Reset()
		htmlBuf.WriteString("<p>Failed to render documentation.</p>")
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Title   string
		Content template.HTML
	}{
		Title:   title,
		Content: template.HTML(htmlBuf.String()),
	}
	if err := docsPage.Execute(w, data); err != nil {
		g.logger.Debug("writing docs page", "error", err)
	}
}
