// ABOUTME: Decoded Flickr response and helpers for walking decoded maps
// ABOUTME: Handles Flickr's {"_content": ...} convention for text nodes

package flickr

import (
	"encoding/json"
	"fmt"
)

// Response is a decoded Flickr response.
type Response struct {
	Method string
	Format Format
	Body   []byte
	Data   any
	Status Status
}

// Map returns Data as a map, or nil when the format does not decode to one.
func (r *Response) Map() map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.Data.(map[string]any)
	return m
}

// Node returns Data as an XML node, or nil for other formats.
func (r *Response) Node() *Node {
	if r == nil {
		return nil
	}
	n, _ := r.Data.(*Node)
	return n
}

// Lookup walks nested maps along path.
func Lookup(m map[string]any, path ...string) (any, bool) {
	var cur any = m
	for _, p := range path {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Text returns the string at path. Objects of the form {"_content": v}
// yield v.
func Text(m map[string]any, path ...string) string {
	v, ok := Lookup(m, path...)
	if !ok || v == nil {
		return ""
	}
	if mm, ok := v.(map[string]any); ok {
		c, ok := mm["_content"]
		if !ok || c == nil {
			return ""
		}
		v = c
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// Int returns the integer at path, 0 if absent.
func Int(m map[string]any, path ...string) int {
	v, ok := Lookup(m, path...)
	if !ok {
		return 0
	}
	if mm, ok := v.(map[string]any); ok {
		v = mm["_content"]
	}
	return toInt(v)
}

// List returns the slice at path. A single object is returned as a one
// element slice, matching how php_serial collapses one-element lists.
func List(m map[string]any, path ...string) []any {
	v, ok := Lookup(m, path...)
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	default:
		return nil
	}
}
