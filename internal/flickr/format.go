// ABOUTME: Response format negotiation and one decoder per format
// ABOUTME: Decoders also extract Flickr's stat/code/message envelope for error classification

package flickr

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format selects the response serialization requested from Flickr.
type Format string

const (
	FormatJSON Format = "json"
	FormatPHP  Format = "php_serial"
	FormatXML  Format = "xml"
	FormatRaw  Format = "raw"
)

// ParseFormat maps a configured format name to a Format. "php" and "rest" are
// accepted as aliases; ok is false for unknown names.
func ParseFormat(name string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, true
	case "php", "php_serial":
		return FormatPHP, true
	case "xml", "rest", "simplexml":
		return FormatXML, true
	case "raw":
		return FormatRaw, true
	default:
		return "", false
	}
}

// Status is the outcome envelope Flickr wraps every response in.
type Status struct {
	Present bool
	OK      bool
	Code    int
	Message string
}

// Decoder turns a raw response body into a Go value.
type Decoder interface {
	// Params returns the query parameters that ask Flickr for this format.
	Params() map[string]string
	// Decode parses body and extracts the response status.
	Decode(body []byte) (any, Status, error)
}

// DecoderFor returns the decoder for f.
func DecoderFor(f Format) Decoder {
	switch f {
	case FormatPHP:
		return phpDecoder{}
	case FormatXML:
		return xmlDecoder{}
	case FormatRaw:
		return rawDecoder{}
	default:
		return jsonDecoder{}
	}
}

type jsonDecoder struct{}

func (jsonDecoder) Params() map[string]string {
	return map[string]string{"format": "json", "nojsoncallback": "1"}
}

func (jsonDecoder) Decode(body []byte) (any, Status, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v map[string]any
	if err := dec.Decode(&v); err != nil {
		return nil, Status{}, err
	}
	return v, statusFromMap(v), nil
}

type phpDecoder struct{}

func (phpDecoder) Params() map[string]string {
	return map[string]string{"format": "php_serial"}
}

func (phpDecoder) Decode(body []byte) (any, Status, error) {
	v, err := UnserializePHP(body)
	if err != nil {
		return nil, Status{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return v, Status{}, nil
	}
	return m, statusFromMap(m), nil
}

type rawDecoder struct{}

func (rawDecoder) Params() map[string]string { return nil }

func (rawDecoder) Decode(body []byte) (any, Status, error) {
	return body, Status{}, nil
}

// statusFromMap reads stat, code and message from a decoded JSON or PHP map.
func statusFromMap(m map[string]any) Status {
	stat, ok := m["stat"]
	if !ok {
		return Status{}
	}
	s := Status{Present: true, OK: fmt.Sprint(stat) == "ok"}
	if code, ok := m["code"]; ok {
		s.Code = toInt(code)
	}
	if msg, ok := m["message"]; ok {
		s.Message = fmt.Sprint(msg)
	}
	return s
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := strconv.Atoi(n.String())
		return i
	case string:
		i, _ := strconv.Atoi(n)
		return i
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Node is a generic XML element as returned by the xml/rest format.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Child returns the first direct child named name, or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type xmlDecoder struct{}

func (xmlDecoder) Params() map[string]string { return nil }

func (xmlDecoder) Decode(body []byte) (any, Status, error) {
	root, err := parseXML(body)
	if err != nil {
		return nil, Status{}, err
	}
	if root.Name != "rsp" {
		return root, Status{}, nil
	}
	s := Status{Present: true, OK: root.Attrs["stat"] == "ok"}
	if e := root.Child("err"); e != nil {
		s.Code, _ = strconv.Atoi(e.Attrs["code"])
		s.Message = e.Attrs["msg"]
	}
	return root, s, nil
}

func parseXML(body []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	var stack []*Node
	var root *Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				n.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += strings.TrimSpace(string(t))
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("empty xml document")
	}
	return root, nil
}
