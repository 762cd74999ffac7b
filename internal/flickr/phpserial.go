// ABOUTME: Decoder for Flickr's php_serial response format
// ABOUTME: Parses PHP serialize() output into maps, slices and scalars

package flickr

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
)

// UnserializePHP decodes PHP serialize() output. Arrays with keys 0..n-1 in
// order become []any; other arrays and objects become map[string]any.
// Integers decode as int64, floats as float64.
func UnserializePHP(data []byte) (any, error) {
	p := &phpParser{data: data}
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	if p.pos != len(bytes.TrimRight(p.data, "\r\n\t ")) {
		return nil, fmt.Errorf("php_serial: trailing data at offset %d", p.pos)
	}
	return v, nil
}

// maxPHPDepth bounds array and object nesting.
const maxPHPDepth = 64

// minPHPMemberSize is the shortest key/value pair, `i:0;N;`.
const minPHPMemberSize = 6

type phpParser struct {
	data  []byte
	pos   int
	depth int
}

func (p *phpParser) errorf(format string, args ...any) error {
	return fmt.Errorf("php_serial: offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *phpParser) expect(b byte) error {
	if p.pos >= len(p.data) || p.data[p.pos] != b {
		return p.errorf("expected %q", b)
	}
	p.pos++
	return nil
}

// until returns the bytes up to (not including) the next delim and consumes it.
func (p *phpParser) until(delim byte) (string, error) {
	i := bytes.IndexByte(p.data[p.pos:], delim)
	if i < 0 {
		return "", p.errorf("missing %q", delim)
	}
	s := string(p.data[p.pos : p.pos+i])
	p.pos += i + 1
	return s, nil
}

func (p *phpParser) value() (any, error) {
	if p.pos+1 >= len(p.data) {
		return nil, p.errorf("unexpected end of input")
	}
	kind := p.data[p.pos]
	if kind == 'N' {
		p.pos++
		return nil, p.expect(';')
	}
	p.pos++
	if err := p.expect(':'); err != nil {
		return nil, err
	}

	switch kind {
	case 'b':
		s, err := p.until(';')
		if err != nil {
			return nil, err
		}
		return s == "1", nil
	case 'i':
		s, err := p.until(';')
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, p.errorf("bad integer %q", s)
		}
		return n, nil
	case 'd':
		s, err := p.until(';')
		if err != nil {
			return nil, err
		}
		return parsePHPFloat(s)
	case 's':
		return p.str(';')
	case 'a':
		return p.nested()
	case 'O':
		// The class name is followed by ':' rather than ';'.
		if _, err := p.str(':'); err != nil {
			return nil, err
		}
		return p.nested()
	default:
		return nil, p.errorf("unknown type %q", kind)
	}
}

func parsePHPFloat(s string) (float64, error) {
	switch s {
	case "INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NAN":
		return math.NaN(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("php_serial: bad float %q", s)
	}
	return f, nil
}

// str parses `LEN:"bytes"` plus the terminator after the type prefix has
// been consumed.
func (p *phpParser) str(term byte) (string, error) {
	ls, err := p.until(':')
	if err != nil {
		return "", err
	}
	n, err := strconv.Atoi(ls)
	if err != nil || n < 0 {
		return "", p.errorf("bad string length %q", ls)
	}
	if err := p.expect('"'); err != nil {
		return "", err
	}
	if p.pos+n > len(p.data) {
		return "", p.errorf("string overruns input")
	}
	s := string(p.data[p.pos : p.pos+n])
	p.pos += n
	if err := p.expect('"'); err != nil {
		return "", err
	}
	if err := p.expect(term); err != nil {
		return "", err
	}
	return s, nil
}

func (p *phpParser) nested() (any, error) {
	if p.depth >= maxPHPDepth {
		return nil, p.errorf("nesting deeper than %d", maxPHPDepth)
	}
	p.depth++
	defer func() { p.depth-- }()
	return p.members()
}

// members parses `N:{key;value;...}`. The declared count is checked against
// the remaining input before anything is allocated for it.
func (p *phpParser) members() (any, error) {
	cs, err := p.until(':')
	if err != nil {
		return nil, err
	}
	count, err := strconv.Atoi(cs)
	if err != nil || count < 0 {
		return nil, p.errorf("bad element count %q", cs)
	}
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	if count > (len(p.data)-p.pos)/minPHPMemberSize {
		return nil, p.errorf("element count %d overruns input", count)
	}

	keys := make([]string, 0, count)
	values := make([]any, 0, count)
	sequential := true
	for i := 0; i < count; i++ {
		k, err := p.value()
		if err != nil {
			return nil, err
		}
		var key string
		switch kv := k.(type) {
		case int64:
			key = strconv.FormatInt(kv, 10)
			if kv != int64(i) {
				sequential = false
			}
		case string:
			key = kv
			sequential = false
		default:
			return nil, p.errorf("unsupported key type %T", k)
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		values = append(values, v)
	}
	if err := p.expect('}'); err != nil {
		return nil, err
	}

	if sequential && count > 0 {
		return values, nil
	}
	m := make(map[string]any, count)
	for i, k := range keys {
		m[k] = values[i]
	}
	return m, nil
}
