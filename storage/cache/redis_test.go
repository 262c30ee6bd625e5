package cache

import (
	"context"
	"errors"
	"os"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchPrefixEscapesGlobSyntax(t *testing.T) {
	require.Equal(t, `stakegov:account:alice:*`, matchPrefix("stakegov:account:alice:"))
	require.Equal(t, `account:a\*b\?c\[d\]e\\f:*`, matchPrefix(`account:a*b?c[d]e\f:`))

	// path.Match shares the escape and wildcard rules SCAN MATCH uses for
	// keys without slashes.
	cases := []struct {
		prefix string
		key    string
		want   bool
	}{
		{"account:a?c:", "account:a?c:summary", true},
		{"account:a?c:", "account:abc:summary", false},
		{"account:[ab]:", "account:a:summary", false},
		{"account:[ab]:", "account:[ab]:locks", true},
		{`account:x\y:`, `account:x\y:votes`, true},
		{`account:x\y:`, "account:xy:votes", false},
	}
	for _, tc := range cases {
		ok, err := path.Match(matchPrefix(tc.prefix), tc.key)
		require.NoError(t, err, tc.prefix)
		require.Equal(t, tc.want, ok, "%s vs %s", tc.prefix, tc.key)
	}
}

// TestRedisRoundTrip runs against a live server when STAKEGOV_TEST_REDIS
// names one.
func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("STAKEGOV_TEST_REDIS")
	if addr == "" {
		t.Skip("STAKEGOV_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, RedisConfig{Address: addr, Prefix: "stakegov-test:" + t.Name() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.DeletePattern(ctx, "")
		_ = r.Close()
	})

	require.NoError(t, r.Set(ctx, "account:a?c:summary", []byte("1"), time.Minute))
	require.NoError(t, r.Set(ctx, "account:abc:summary", []byte("2"), time.Minute))
	require.NoError(t, r.Set(ctx, "validators:apy", []byte("3"), time.Minute))

	got, err := r.Get(ctx, "account:abc:summary")
	require.NoError(t, err)
	require.Equal(t, []byte("2"), got)

	require.NoError(t, r.DeletePattern(ctx, "account:a?c:"))
	_, err = r.Get(ctx, "account:a?c:summary")
	require.True(t, errors.Is(err, ErrMiss))
	_, err = r.Get(ctx, "account:abc:summary")
	require.NoError(t, err)

	require.NoError(t, r.Delete(ctx, "validators:apy"))
	_, err = r.Get(ctx, "validators:apy")
	require.True(t, errors.Is(err, ErrMiss))
	require.NoError(t, r.Ping(ctx))
}
