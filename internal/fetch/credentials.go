package fetch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Resolver resolves `${NAME}` placeholders in request headers. Besides
// plain environment variables this is the hook for dynamic credential
// injection: a resolver may fetch a bearer token when asked for the
// name it serves.
type Resolver interface {
	Resolve(name string) (string, error)
}

// EnvResolver resolves placeholders from the process environment.
type EnvResolver struct{}

func (EnvResolver) Resolve(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("environment variable %s required by request header is not set", name)
	}
	return v, nil
}

// StaticResolver resolves placeholders from a fixed map.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(name string) (string, error) {
	v, ok := r[name]
	if !ok {
		return "", fmt.Errorf("no value for placeholder %s", name)
	}
	return v, nil
}

// TokenSource obtains a fresh credential and reports how long it stays
// valid.
type TokenSource func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenResolver serves one placeholder name from a cached token that is
// refreshed before it expires. The cache belongs to the resolver, so
// each fetch session can own an independent one. The environment still
// wins when the variable is set, which keeps local overrides working.
// Concurrent refreshes are coalesced.
type TokenResolver struct {
	// Name is the placeholder this resolver serves.
	Name string
	// Source fetches a fresh token.
	Source TokenSource
	// Margin is subtracted from the token lifetime; the token is
	// refreshed once it is within Margin of expiry. Defaults to 2m.
	Margin time.Duration
	// Next handles every other placeholder name. Defaults to EnvResolver.
	Next Resolver

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

func (r *TokenResolver) Resolve(name string) (string, error) {
	if name != r.Name {
		next := r.Next
		if next == nil {
			next = EnvResolver{}
		}
		return next.Resolve(name)
	}

	if v, ok := os.LookupEnv(name); ok && v != "" {
		return v, nil
	}

	margin := r.Margin
	if margin <= 0 {
		margin = 2 * time.Minute
	}

	r.mu.Lock()
	if r.token != "" && time.Now().Add(margin).Before(r.expiresAt) {
		token := r.token
		r.mu.Unlock()
		return token, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(r.Name, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		token, ttl, err := r.Source(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolving credential %s: %w", r.Name, err)
		}
		r.mu.Lock()
		r.token = token
		r.expiresAt = time.Now().Add(ttl)
		r.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
