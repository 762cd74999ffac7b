// ABOUTME: Request signing using Flickr's api_sig convention
// ABOUTME: MD5 over the shared secret followed by sorted key/value pairs

package flickr

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// paramSignature is the name of the signature parameter. It is never part of
// its own input.
const paramSignature = "api_sig"

// Sign computes the api_sig for params. Keys are sorted, then secret and every
// key+value are concatenated and hashed. The result does not depend on the
// order in which params were built.
func Sign(secret string, params map[string]string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: api secret is empty", ErrConfig)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if k == paramSignature {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(secret)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

// signValues signs url.Values, using the first value of each key.
func signValues(secret string, values url.Values) (string, error) {
	flat := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return Sign(secret, flat)
}
