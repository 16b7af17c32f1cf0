package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"marketfetch/internal/config"
	"marketfetch/internal/httpx"
	"marketfetch/internal/market"
)

// DefaultHistoryTimeout bounds one history request end to end.
const DefaultHistoryTimeout = 10 * time.Second

// HistoryFetcher retrieves the daily OHLC series for single symbols.
// Unlike snapshots, history is fetched on demand and never retried.
type HistoryFetcher struct {
	market   *config.Market
	client   HTTPDoer
	resolver Resolver
}

// NewHistoryFetcher builds a fetcher for one market. A nil client
// selects a default with DefaultHistoryTimeout.
func NewHistoryFetcher(m *config.Market, client HTTPDoer, resolver Resolver) *HistoryFetcher {
	if client == nil {
		client = httpx.New(DefaultHistoryTimeout)
	}
	return &HistoryFetcher{market: m, client: client, resolver: resolver}
}

// HistoryResult pairs a fetched series with the error that ended the
// fetch, for delivery over a channel.
type HistoryResult struct {
	Symbol  string
	Candles []market.Candle
	Err     error
}

// Fetch retrieves the series for one symbol, oldest bar first. Rows
// that fail to parse are skipped; a series with zero surviving bars is
// an ErrNoData error.
func (f *HistoryFetcher) Fetch(ctx context.Context, symbol string) ([]market.Candle, error) {
	cfg := f.market.Provider.History()

	extras := map[string]string{}
	if cfg.Limit > 0 {
		extras["record_days"] = strconv.Itoa(cfg.Limit)
	}

	prepared, err := PrepareRequest(&cfg.Request, RequestContext{
		Symbol:   symbol,
		Market:   f.market.Code,
		Extras:   extras,
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
		return nil, fmt.Errorf("history request for %s failed: %w", symbol, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("history request for %s failed with status %d", symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading history body for %s: %w", symbol, err)
	}

	var candles []market.Candle
	switch {
	case cfg.JSONRows != nil:
		candles, err = decodeJSONRows(string(body), cfg.JSONRows, symbol, cfg.Request.Transform.Apply(symbol))
	case cfg.CSVRows != nil:
		candles, err = decodeCSVRows(string(body), cfg.CSVRows)
	default:
		err = fmt.Errorf("market %s has no history response layout", f.market.Code)
	}
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", symbol, err)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("no historical data for %s: %w", symbol, ErrNoData)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	if cfg.Limit > 0 && len(candles) > cfg.Limit {
		candles = candles[len(candles)-cfg.Limit:]
	}
	return candles, nil
}

// FetchAsync starts the fetch in the background and returns a buffered
// channel that delivers exactly one result. The caller consumes the
// channel whenever its UI is ready; the goroutine never blocks on it.
func (f *HistoryFetcher) FetchAsync(ctx context.Context, symbol string) <-chan HistoryResult {
	out := make(chan HistoryResult, 1)
	go func() {
		candles, err := f.Fetch(ctx, symbol)
		out <- HistoryResult{Symbol: symbol, Candles: candles, Err: err}
		close(out)
	}()
	return out
}

func decodeJSONRows(body string, cfg *config.JSONRowsResponse, rawSymbol, transformedSymbol string) ([]market.Candle, error) {
	root, err := unmarshalJSON(body)
	if err != nil {
		return nil, err
	}
	node, err := walkJSONPath(root, cfg.Path, rawSymbol, transformedSymbol)
	if err != nil {
		return nil, err
	}
	rows, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("history payload is not a row array")
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		fields, ok := splitRow(row, cfg.RowDelimiter)
		if !ok {
			log.Printf("skipping malformed history row: %v", row)
			continue
		}
		candle, ok := candleFromFields(fields, cfg.Columns, cfg.DateLayout)
		if !ok {
			log.Printf("skipping unparsable history row: %v", fields)
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func decodeCSVRows(body string, cfg *config.CSVRowsResponse) ([]market.Candle, error) {
	lines := strings.Split(body, "\n")
	if cfg.SkipLines > len(lines) {
		return nil, nil
	}

	var candles []market.Candle
	for _, line := range lines[cfg.SkipLines:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := splitDelimited(line, cfg.Delimiter)
		candle, ok := candleFromFields(fields, cfg.Columns, cfg.DateLayout)
		if !ok {
			log.Printf("skipping unparsable history row: %q", line)
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// candleFromFields assembles one bar from positional fields. Any
// missing or unparsable cell invalidates the whole bar.
func candleFromFields(fields []string, cols config.HistoryColumns, dateLayout string) (market.Candle, bool) {
	cell := func(idx int) (string, bool) {
		if idx < 0 || idx >= len(fields) {
			return "", false
		}
		return fields[idx], true
	}

	rawDate, ok := cell(cols.Date)
	if !ok {
		return market.Candle{}, false
	}
	ts, err := parseDate(rawDate, dateLayout)
	if err != nil {
		return market.Candle{}, false
	}

	num := func(idx int) (float64, bool) {
		raw, ok := cell(idx)
		if !ok {
			return 0, false
		}
		return parseFloat(raw)
	}

	open, ok := num(cols.Open)
	if !ok {
		return market.Candle{}, false
	}
	high, ok := num(cols.High)
	if !ok {
		return market.Candle{}, false
	}
	low, ok := num(cols.Low)
	if !ok {
		return market.Candle{}, false
	}
	close_, ok := num(cols.Close)
	if !ok {
		return market.Candle{}, false
	}

	return market.Candle{
		Timestamp: ts,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close_,
	}, true
}
