// ABOUTME: Bounded ring buffer of recent calls for diagnostics
// ABOUTME: Each Gateway owns one; failures are recorded alongside successes

package flickr

import (
	"maps"
	"sync"
	"time"
)

// Call records one Invoke for diagnostics. Params never hold the auth token
// or the frob.
type Call struct {
	ID        string
	SessionID string
	Method    string
	Params    map[string]string
	Options   CallOptions
	Signature string
	Response  *Response
	Err       error
	Started   time.Time
	Duration  time.Duration
}

// History keeps the most recent calls, oldest dropped first.
type History struct {
	mu    sync.Mutex
	calls []*Call
	next  int
	full  bool
}

// NewHistory returns a history holding up to size calls. size < 1 means 1.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{calls: make([]*Call, size)}
}

// Add records c, evicting the oldest call when full.
func (h *History) Add(c *Call) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.calls[h.next] = c
	h.next = (h.next + 1) % len(h.calls)
	if h.next == 0 {
		h.full = true
	}
}

// Last returns the most recent call, or nil.
func (h *History) Last() *Call {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full && h.next == 0 {
		return nil
	}
	i := (h.next - 1 + len(h.calls)) % len(h.calls)
	return h.calls[i]
}

// redactedParams are credentials dropped from recorded params.
var redactedParams = []string{"auth_token", "frob"}

func redact(params map[string]string) map[string]string {
	out := maps.Clone(params)
	for _, k := range redactedParams {
		delete(out, k)
	}
	return out
}

// Recent returns recorded calls, newest first.
func (h *History) Recent() []*Call {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.calls)
	}
	out := make([]*Call, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, h.calls[(h.next-i+len(h.calls))%len(h.calls)])
	}
	return out
}
