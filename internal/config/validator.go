package config

import (
	"fmt"
	"sort"
	"strings"
)

// Validate checks the invariants the fetch engine assumes: non-empty
// templates and delimiters, no duplicate field positions, a symbol
// segment where the wire format requires one, and sane thresholds.
// All problems are reported at once.
func Validate(m *Market) error {
	var issues []string

	if len(m.Symbols) == 0 {
		issues = append(issues, "symbol list is empty")
	}

	for key, t := range m.Thresholds {
		if t.Lower > t.Upper {
			issues = append(issues, fmt.Sprintf("threshold %q has lower bound above upper bound", key))
		}
	}

	switch {
	case m.Provider.JSONQuote != nil:
		validateSnapshot(&m.Provider.JSONQuote.Snapshot, true, &issues)
		validateHistory(&m.Provider.JSONQuote.History, &issues)
	case m.Provider.CSVQuote != nil:
		validateSnapshot(&m.Provider.CSVQuote.Snapshot, false, &issues)
		validateHistory(&m.Provider.CSVQuote.History, &issues)
	default:
		issues = append(issues, "provider is not configured")
	}

	if len(issues) == 0 {
		return nil
	}
	return fmt.Errorf("invalid market %s: %s", m.Code, strings.Join(issues, "; "))
}

func validateSnapshot(s *SnapshotConfig, wantSymbolSegment bool, issues *[]string) {
	validateRequest(&s.Request, "snapshot", issues)

	switch {
	case s.Response.JSON != nil:
		if len(s.Response.JSON.Path) == 0 {
			*issues = append(*issues, "snapshot.response.path must not be empty")
		}
		for _, seg := range s.Response.JSON.Path {
			if !seg.Symbol && seg.Key == "" {
				*issues = append(*issues, "snapshot.response.path entries must not be empty")
			}
		}
		if wantSymbolSegment && !hasSymbolSegment(s.Response.JSON.Path) {
			*issues = append(*issues, "snapshot.response.path must contain the {symbol} segment")
		}
	case s.Response.Delimited != nil:
		if s.Response.Delimited.Delimiter == 0 {
			*issues = append(*issues, "snapshot.response.delimiter must not be empty")
		}
	default:
		*issues = append(*issues, "snapshot.response is not configured")
	}

	if len(s.FieldIndices) == 0 {
		*issues = append(*issues, "snapshot.field_indices must not be empty")
		return
	}
	validateIndexMap(s.FieldIndices, issues)
}

func validateRequest(r *Request, context string, issues *[]string) {
	if strings.TrimSpace(r.URLTemplate) == "" {
		*issues = append(*issues, context+".request.url_template must not be empty")
	}
	if r.Transform.Lowercase && r.Transform.Uppercase {
		*issues = append(*issues, context+".request.code_transform cannot be both lowercase and uppercase")
	}
}

// validateIndexMap rejects two metric keys pointing at the same field
// position; the decoder could not tell them apart.
func validateIndexMap(indices map[string]int, issues *[]string) {
	byPos := make(map[int][]string, len(indices))
	for key, pos := range indices {
		if pos < 0 {
			*issues = append(*issues, fmt.Sprintf("field index %q is negative", key))
			continue
		}
		byPos[pos] = append(byPos[pos], key)
	}
	var dups []string
	for pos, keys := range byPos {
		if len(keys) > 1 {
			sort.Strings(keys)
			dups = append(dups, fmt.Sprintf("%d (%s)", pos, strings.Join(keys, ", ")))
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		*issues = append(*issues, "field_indices contains duplicate positions: "+strings.Join(dups, "; "))
	}
}

func validateHistory(h *HistoryConfig, issues *[]string) {
	validateRequest(&h.Request, "history", issues)
	if h.Limit < 0 {
		*issues = append(*issues, "history.limit must not be negative")
	}

	switch {
	case h.JSONRows != nil:
		if len(h.JSONRows.Path) == 0 {
			*issues = append(*issues, "history.response.path must not be empty")
		}
		if strings.TrimSpace(h.JSONRows.DateLayout) == "" {
			*issues = append(*issues, "history.response.date_layout must not be empty")
		}
		validateColumns(h.JSONRows.Columns, issues)
	case h.CSVRows != nil:
		if h.CSVRows.Delimiter == 0 {
			*issues = append(*issues, "history.response.delimiter must not be empty")
		}
		if strings.TrimSpace(h.CSVRows.DateLayout) == "" {
			*issues = append(*issues, "history.response.date_layout must not be empty")
		}
		validateColumns(h.CSVRows.Columns, issues)
	default:
		*issues = append(*issues, "history.response is not configured")
	}
}

func validateColumns(c HistoryColumns, issues *[]string) {
	positions := map[string]int{
		"date":  c.Date,
		"open":  c.Open,
		"high":  c.High,
		"low":   c.Low,
		"close": c.Close,
	}
	validateIndexMap(positions, issues)
}

func hasSymbolSegment(path []PathSegment) bool {
	for _, seg := range path {
		if seg.Symbol {
			return true
		}
	}
	return false
}
