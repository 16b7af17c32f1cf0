package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"marketfetch/internal/config"
	"marketfetch/internal/httpx"
	"marketfetch/internal/market"
)

const (
	// DefaultConcurrency bounds the number of in-flight snapshot
	// fetches per batch.
	DefaultConcurrency = 5

	// DefaultSnapshotTimeout bounds one snapshot request end to end.
	DefaultSnapshotTimeout = 15 * time.Second

	// maxAttempts is the total number of tries for a retriable
	// snapshot failure.
	maxAttempts = 3
)

// SnapshotOptions tune a SnapshotFetcher. The zero value picks the
// defaults.
type SnapshotOptions struct {
	// Concurrency is the worker pool bound; values below 1 are raised
	// to 1, 0 selects DefaultConcurrency.
	Concurrency int
	// Client overrides the HTTP client; nil builds one with
	// DefaultSnapshotTimeout.
	Client HTTPDoer
	// Resolver handles ${NAME} header placeholders; nil resolves from
	// the environment.
	Resolver Resolver
}

// SnapshotFetcher fans a symbol list out across a bounded pool and
// aggregates the snapshots that survive. A shared progress counter is
// readable while a batch runs so a caller can render a progress bar.
type SnapshotFetcher struct {
	market   *config.Market
	symbols  []string
	client   HTTPDoer
	resolver Resolver
	limit    int64

	done  atomic.Int64
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSnapshotFetcher builds a fetcher for one batch over one market.
func NewSnapshotFetcher(m *config.Market, symbols []string, opts SnapshotOptions) *SnapshotFetcher {
	limit := opts.Concurrency
	if limit == 0 {
		limit = DefaultConcurrency
	}
	if limit < 1 {
		limit = 1
	}
	client := opts.Client
	if client == nil {
		client = httpx.New(DefaultSnapshotTimeout)
	}
	return &SnapshotFetcher{
		market:   m,
		symbols:  symbols,
		client:   client,
		resolver: opts.Resolver,
		limit:    int64(limit),
		sleep:    sleepCtx,
	}
}

// Progress reports how many symbols have concluded (success or
// failure) and the batch total.
func (f *SnapshotFetcher) Progress() (done, total int) {
	return int(f.done.Load()), len(f.symbols)
}

// FetchAll runs the batch. Per-symbol failures shrink the result set;
// only a batch with zero survivors is an error. Results are keyed by
// symbol, not ordered by completion.
func (f *SnapshotFetcher) FetchAll(ctx context.Context) ([]market.StockData, error) {
	f.done.Store(0)

	sem := semaphore.NewWeighted(f.limit)
	results := make([]*market.StockData, len(f.symbols))

	var mu sync.Mutex
	var lastErr error

	var wg sync.WaitGroup
	for i, symbol := range f.symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			defer f.done.Add(1)

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			data, err := f.fetchOne(ctx, symbol)
			if err != nil {
				mu.Lock()
				lastErr = err
				mu.Unlock()
				return
			}
			results[i] = data
		}(i, symbol)
	}
	wg.Wait()

	out := make([]market.StockData, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: no snapshot fetched: %v", ErrNoData, lastErr)
		}
		return nil, fmt.Errorf("%w: no snapshot fetched", ErrNoData)
	}
	return out, nil
}

func (f *SnapshotFetcher) fetchOne(ctx context.Context, symbol string) (*market.StockData, error) {
	switch {
	case f.market.Provider.JSONQuote != nil:
		return f.fetchJSONQuote(ctx, symbol, &f.market.Provider.JSONQuote.Snapshot)
	case f.market.Provider.CSVQuote != nil:
		return f.fetchCSVQuote(ctx, symbol, &f.market.Provider.CSVQuote.Snapshot)
	}
	return nil, fmt.Errorf("market %s has no provider", f.market.Code)
}

// fetchJSONQuote implements the retrying protocol: blocks are fatal
// immediately, other failures back off and retry up to maxAttempts.
func (f *SnapshotFetcher) fetchJSONQuote(ctx context.Context, symbol string, cfg *config.SnapshotConfig) (*market.StockData, error) {
	prepared, err := PrepareRequest(&cfg.Request, RequestContext{
		Symbol:   symbol,
		Market:   f.market.Code,
		Resolver: f.resolver,
	})
	if err != nil {
		return nil, err
	}

	body, err := f.performWithRetry(ctx, symbol, prepared, cfg.FirewallMarker)
	if err != nil {
		return nil, err
	}

	fields, err := decodeSnapshotFields(body, cfg, symbol, cfg.Request.Transform.Apply(symbol))
	if err != nil {
		return nil, fmt.Errorf("snapshot for %s: %w", symbol, err)
	}
	return f.buildFromIndexed(symbol, fields, cfg.FieldIndices)
}

func (f *SnapshotFetcher) performWithRetry(ctx context.Context, symbol string, prepared *PreparedRequest, firewallMarker string) (string, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		body, fatal, err := f.performOnce(ctx, symbol, prepared, firewallMarker)
		if err == nil {
			return body, nil
		}
		if fatal {
			return "", err
		}
		lastErr = err

		if attempt == maxAttempts {
			return "", fmt.Errorf("fetching %s failed after %d attempts: %w", symbol, attempt, lastErr)
		}
		if err := f.sleep(ctx, backoff(attempt)); err != nil {
			return "", err
		}
	}
}

// performOnce sends one request and classifies the outcome. fatal
// reports whether the error must not be retried.
func (f *SnapshotFetcher) performOnce(ctx context.Context, symbol string, prepared *PreparedRequest, firewallMarker string) (body string, fatal bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, prepared.URL, nil)
	if err != nil {
		return "", true, err
	}
	req.Header = prepared.Header.Clone()

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return "", false, fmt.Errorf("request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return "", true, fmt.Errorf("request for %s was redirected: %w", symbol, ErrBlocked)
	case resp.StatusCode == http.StatusForbidden:
		return "", true, fmt.Errorf("request for %s was blocked by firewall: %w", symbol, ErrBlocked)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", false, fmt.Errorf("request for %s failed with status %d", symbol, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("reading response body for %s: %w", symbol, err)
	}
	text := string(b)

	if firewallMarker != "" && strings.Contains(text, firewallMarker) {
		return "", true, fmt.Errorf("request for %s was blocked by firewall: %w", symbol, ErrBlocked)
	}
	return text, false, nil
}

// requiredMetrics are the indexed fields a JSON-quote snapshot must
// carry; only the display name may be absent.
var requiredMetrics = []string{"curr", "prevClosed", "open", "increase", "highest", "lowest", "turnOver", "amp", "tm"}

func (f *SnapshotFetcher) buildFromIndexed(symbol string, fields []string, indices map[string]int) (*market.StockData, error) {
	lookup := func(key string) (string, bool) {
		idx, ok := indices[key]
		if !ok || idx < 0 || idx >= len(fields) {
			return "", false
		}
		return strings.TrimSpace(fields[idx]), true
	}

	floatField := func(key string) (float64, error) {
		raw, ok := lookup(key)
		if !ok {
			return 0, fmt.Errorf("snapshot for %s is missing field %q", symbol, key)
		}
		v, ok := parseFloat(raw)
		if !ok {
			return 0, fmt.Errorf("snapshot for %s: cannot parse %q as %s", symbol, raw, key)
		}
		return v, nil
	}

	values := make(map[string]float64, len(requiredMetrics))
	for _, key := range requiredMetrics {
		v, err := floatField(key)
		if err != nil {
			return nil, err
		}
		values[key] = v
	}

	name, _ := lookup("stockName")
	name = f.displayName(symbol, name)

	return &market.StockData{
		Market:     f.market.Code,
		Name:       name,
		Symbol:     symbol,
		Curr:       values["curr"],
		PrevClosed: values["prevClosed"],
		Open:       values["open"],
		Increase:   values["increase"],
		Highest:    values["highest"],
		Lowest:     values["lowest"],
		TurnOver:   values["turnOver"],
		Amp:        values["amp"],
		TM:         values["tm"],
	}, nil
}

// fetchCSVQuote queries a two-line CSV endpoint. One attempt only: the
// CSV providers are well behaved, and hammering them on a miss buys
// nothing.
func (f *SnapshotFetcher) fetchCSVQuote(ctx context.Context, symbol string, cfg *config.SnapshotConfig) (*market.StockData, error) {
	prepared, err := PrepareRequest(&cfg.Request, RequestContext{
		Symbol:   symbol,
		Market:   f.market.Code,
		Resolver: f.resolver,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, prepared.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = prepared.Header.Clone()

	resp, err := f.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request for %s failed with status %d", symbol, resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body for %s: %w", symbol, err)
	}

	delim := cfg.Response.Delimited
	if delim == nil {
		return nil, fmt.Errorf("market %s: CSV provider without delimited response", f.market.Code)
	}

	line, ok := dataLine(string(b), delim.SkipLines)
	if !ok {
		return nil, fmt.Errorf("no quote data returned for %s", symbol)
	}

	fields := splitDelimited(line, delim.Delimiter)
	if len(fields) < minFieldCount(cfg.FieldIndices) {
		return nil, fmt.Errorf("unexpected quote format for %s", symbol)
	}

	get := func(key string) (float64, error) {
		idx, ok := cfg.FieldIndices[key]
		if !ok || idx >= len(fields) {
			return 0, fmt.Errorf("snapshot for %s is missing field %q", symbol, key)
		}
		v, ok := parseFloat(fields[idx])
		if !ok {
			return 0, fmt.Errorf("snapshot for %s: cannot parse %q as %s", symbol, fields[idx], key)
		}
		return v, nil
	}

	open, err := get("open")
	if err != nil {
		return nil, err
	}
	high, err := get("highest")
	if err != nil {
		return nil, err
	}
	low, err := get("lowest")
	if err != nil {
		return nil, err
	}
	close_, err := get("curr")
	if err != nil {
		return nil, err
	}
	prevClose, err := get("prevClosed")
	if err != nil {
		return nil, err
	}
	volume, err := get("volume")
	if err != nil {
		return nil, err
	}

	return &market.StockData{
		Market:     f.market.Code,
		Name:       f.displayName(symbol, ""),
		Symbol:     symbol,
		Curr:       close_,
		PrevClosed: prevClose,
		Open:       open,
		Increase:   market.PercentChange(close_, prevClose),
		Highest:    high,
		Lowest:     low,
		TurnOver:   volume / 1_000_000,
		Amp:        market.Amplitude(high, low, prevClose),
		TM:         volume * close_ / 1_000_000,
	}, nil
}

// displayName resolves the shown name: provider value, then the static
// table, then the symbol itself.
func (f *SnapshotFetcher) displayName(symbol, fromProvider string) string {
	if fromProvider != "" {
		return fromProvider
	}
	if name, ok := f.market.Names[symbol]; ok && name != "" {
		return name
	}
	return symbol
}

// decodeSnapshotFields walks the declared JSON path and flattens the
// positional field array.
func decodeSnapshotFields(body string, cfg *config.SnapshotConfig, rawSymbol, transformedSymbol string) ([]string, error) {
	if cfg.Response.JSON == nil {
		return nil, fmt.Errorf("JSON provider without json_path response")
	}
	root, err := unmarshalJSON(body)
	if err != nil {
		return nil, err
	}
	node, err := walkJSONPath(root, cfg.Response.JSON.Path, rawSymbol, transformedSymbol)
	if err != nil {
		return nil, err
	}
	array, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("snapshot payload is not a field array")
	}
	fields := make([]string, len(array))
	for i, v := range array {
		fields[i] = valueToString(v)
	}
	return fields, nil
}

// dataLine returns the first non-empty line after skipping the header
// lines.
func dataLine(body string, skip int) (string, bool) {
	lines := strings.Split(body, "\n")
	if skip > len(lines) {
		return "", false
	}
	for _, line := range lines[skip:] {
		if strings.TrimSpace(line) != "" {
			return line, true
		}
	}
	return "", false
}

func minFieldCount(indices map[string]int) int {
	max := 0
	for _, idx := range indices {
		if idx+1 > max {
			max = idx + 1
		}
	}
	return max
}

// backoff doubles per attempt: 2s after the first failure, 4s after
// the second.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
