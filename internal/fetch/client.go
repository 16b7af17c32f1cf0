package fetch

import (
	"context"
	"errors"
	"net/http"
)

// HTTPDoer is the transport surface the fetchers need.
// *httpx.Client satisfies it.
//
//go:generate mockgen -package=fetch -destination=mock_client_test.go -source=client.go HTTPDoer
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var (
	// ErrUnsupportedMethod is returned for any request method other
	// than GET.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")

	// ErrBlocked marks a protocol-level block (redirect, 403, or a
	// firewall marker in a 200 body). Blocked requests are never
	// retried.
	ErrBlocked = errors.New("blocked by upstream")

	// ErrNoData is returned when a batch yields no snapshot at all, or
	// a history series is empty after row filtering.
	ErrNoData = errors.New("no data")
)
