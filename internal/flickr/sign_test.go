// ABOUTME: Tests for api_sig computation
// ABOUTME: Checks a known vector, insertion-order independence, and self-exclusion of api_sig

package flickr

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	sig, err := Sign("secret", map[string]string{
		"method":  "flickr.test.echo",
		"api_key": "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "53cb5d17d8b4bd6f9026af56fd2e1fa7", sig)
}

func TestSign_IgnoresExistingSignature(t *testing.T) {
	params := map[string]string{"method": "flickr.test.echo", "api_key": "abc"}
	want, err := Sign("secret", params)
	require.NoError(t, err)

	params[paramSignature] = "stale"
	got, err := Sign("secret", params)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSign_EmptySecret(t *testing.T) {
	_, err := Sign("", map[string]string{"a": "b"})
	assert.True(t, errors.Is(err, ErrConfig))
}

func TestSign_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for trial := range 20 {
		n := 1 + rng.IntN(12)
		keys := make([]string, n)
		vals := make([]string, n)
		for i := range n {
			keys[i] = fmt.Sprintf("k%02d_%d", rng.IntN(100), i)
			vals[i] = fmt.Sprintf("v%d", rng.IntN(1000))
		}

		build := func(order []int) map[string]string {
			m := make(map[string]string, n)
			for _, i := range order {
				m[keys[i]] = vals[i]
			}
			return m
		}

		order := rng.Perm(n)
		want, err := Sign("s3cr3t", build(order))
		require.NoError(t, err)

		for range 10 {
			order = rng.Perm(n)
			got, err := Sign("s3cr3t", build(order))
			require.NoError(t, err)
			assert.Equal(t, want, got, "trial %d", trial)
		}
	}
}

func TestSign_DependsOnSecretAndValues(t *testing.T) {
	params := map[string]string{"api_key": "abc"}
	a, _ := Sign("one", params)
	b, _ := Sign("two", params)
	assert.NotEqual(t, a, b)

	c, _ := Sign("one", map[string]string{"api_key": "abd"})
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 32)
}
