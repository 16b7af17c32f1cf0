// Package config holds the declarative provider configuration the fetch
// engine consumes. A Market describes where its symbol list lives, which
// upstream provider serves it, and how that provider's requests are built
// and responses decoded. Configs are loaded once per session and are
// read-only afterwards.
package config

import (
	"strings"

	"marketfetch/internal/market"
)

// Market is one fetchable market: a symbol universe plus the provider
// that quotes it.
type Market struct {
	Code       string
	Name       string
	Symbols    []string
	Names      map[string]string // static symbol -> display name fallback
	Thresholds map[string]market.Threshold
	Provider   Provider
	Storage    Storage
}

// Storage locates the directories snapshot CSVs and threshold presets
// are written to.
type Storage struct {
	SnapshotsDir string
	PresetsDir   string
}

// Provider is a closed tagged union: exactly one branch is set.
// JSONQuote providers answer nested JSON and tolerate retries;
// CSVQuote providers answer two-line CSV and are queried once.
type Provider struct {
	JSONQuote *JSONQuoteProvider
	CSVQuote  *CSVQuoteProvider
}

// Snapshot returns the active branch's snapshot configuration.
func (p *Provider) Snapshot() *SnapshotConfig {
	if p.JSONQuote != nil {
		return &p.JSONQuote.Snapshot
	}
	return &p.CSVQuote.Snapshot
}

// History returns the active branch's history configuration.
func (p *Provider) History() *HistoryConfig {
	if p.JSONQuote != nil {
		return &p.JSONQuote.History
	}
	return &p.CSVQuote.History
}

type JSONQuoteProvider struct {
	Snapshot SnapshotConfig
	History  HistoryConfig
}

type CSVQuoteProvider struct {
	Snapshot SnapshotConfig
	History  HistoryConfig
}

// SnapshotConfig declares how one symbol's snapshot is requested and
// where its fields sit in the response.
type SnapshotConfig struct {
	Request  Request
	Response SnapshotResponse
	// FieldIndices maps metric keys (curr, prevClosed, ...) to positions
	// in the decoded field sequence.
	FieldIndices map[string]int
	// FirewallMarker, when non-empty, marks a 200 response as a soft
	// block if the body contains it.
	FirewallMarker string
}

// SnapshotResponse is a tagged union: JSON path walk or delimited text.
type SnapshotResponse struct {
	JSON      *JSONResponse
	Delimited *DelimitedResponse
}

type JSONResponse struct {
	Path []PathSegment
}

type DelimitedResponse struct {
	Delimiter rune
	SkipLines int
}

// PathSegment is one step of a JSON path walk: either a literal object
// key or the "current symbol" marker.
type PathSegment struct {
	Key    string
	Symbol bool
}

// HistoryConfig declares the OHLC history request and row layout.
// Exactly one of JSONRows/CSVRows is set.
type HistoryConfig struct {
	Request  Request
	JSONRows *JSONRowsResponse
	CSVRows  *CSVRowsResponse
	// Limit caps the series to the most recent N bars; 0 means no cap.
	Limit int
}

// HistoryColumns gives the positions of the candle fields within a row.
type HistoryColumns struct {
	Date  int
	Open  int
	High  int
	Low   int
	Close int
}

type JSONRowsResponse struct {
	Path    []PathSegment
	Columns HistoryColumns
	// DateLayout is a Go reference layout, e.g. "2006-01-02".
	DateLayout string
	// RowDelimiter splits string-shaped rows into fields; 0 means rows
	// are JSON arrays read by position.
	RowDelimiter rune
}

type CSVRowsResponse struct {
	Delimiter  rune
	SkipLines  int
	Columns    HistoryColumns
	DateLayout string
}

// Request is a templated HTTP request description.
type Request struct {
	Method      string
	URLTemplate string
	Headers     map[string]string
	Transform   CodeTransform
}

// CodeTransform normalizes a raw symbol before it is substituted into a
// request template. Lowercase and Uppercase are mutually exclusive.
type CodeTransform struct {
	Lowercase bool
	Uppercase bool
	Prefix    string
	Suffix    string
}

// Apply returns the transformed symbol.
func (t CodeTransform) Apply(symbol string) string {
	code := symbol
	if t.Lowercase {
		code = strings.ToLower(code)
	} else if t.Uppercase {
		code = strings.ToUpper(code)
	}
	return t.Prefix + code + t.Suffix
}
