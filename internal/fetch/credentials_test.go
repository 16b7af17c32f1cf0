package fetch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEnvResolver(t *testing.T) {
	t.Setenv("MARKETFETCH_TEST_TOKEN", "from-env")

	v, err := EnvResolver{}.Resolve("MARKETFETCH_TEST_TOKEN")
	require.NoError(t, err)
	require.Equal(t, "from-env", v)

	_, err = EnvResolver{}.Resolve("MARKETFETCH_TEST_TOKEN_MISSING")
	require.ErrorContains(t, err, "MARKETFETCH_TEST_TOKEN_MISSING")
}

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	r := StaticResolver{"KEY": "value"}

	v, err := r.Resolve("KEY")
	require.NoError(t, err)
	require.Equal(t, "value", v)

	_, err = r.Resolve("OTHER")
	require.Error(t, err)
}

func TestTokenResolverCachesToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	r := &TokenResolver{
		Name: "SESSION_TOKEN",
		Source: func(ctx context.Context) (string, time.Duration, error) {
			calls.Add(1)
			return "tok-1", time.Hour, nil
		},
	}

	for i := 0; i < 3; i++ {
		v, err := r.Resolve("SESSION_TOKEN")
		require.NoError(t, err)
		require.Equal(t, "tok-1", v)
	}
	require.Equal(t, int64(1), calls.Load())
}

func TestTokenResolverRefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	r := &TokenResolver{
		Name:   "SESSION_TOKEN",
		Margin: time.Minute,
		Source: func(ctx context.Context) (string, time.Duration, error) {
			n := calls.Add(1)
			if n == 1 {
				// Expires inside the margin, so the next resolve refreshes.
				return "tok-1", 30 * time.Second, nil
			}
			return "tok-2", time.Hour, nil
		},
	}

	v, err := r.Resolve("SESSION_TOKEN")
	require.NoError(t, err)
	require.Equal(t, "tok-1", v)

	v, err = r.Resolve("SESSION_TOKEN")
	require.NoError(t, err)
	require.Equal(t, "tok-2", v)
	require.Equal(t, int64(2), calls.Load())
}

func TestTokenResolverEnvironmentWins(t *testing.T) {
	t.Setenv("SESSION_TOKEN_ENV_WINS", "env-token")

	r := &TokenResolver{
		Name: "SESSION_TOKEN_ENV_WINS",
		Source: func(ctx context.Context) (string, time.Duration, error) {
			t.Fatal("source must not be called when the environment is set")
			return "", 0, nil
		},
	}

	v, err := r.Resolve("SESSION_TOKEN_ENV_WINS")
	require.NoError(t, err)
	require.Equal(t, "env-token", v)
}

func TestTokenResolverDelegatesOtherNames(t *testing.T) {
	t.Parallel()

	r := &TokenResolver{
		Name: "SESSION_TOKEN",
		Source: func(ctx context.Context) (string, time.Duration, error) {
			return "tok", time.Hour, nil
		},
		Next: StaticResolver{"OTHER": "static-value"},
	}

	v, err := r.Resolve("OTHER")
	require.NoError(t, err)
	require.Equal(t, "static-value", v)
}
