package fetch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"marketfetch/internal/config"
)

func unmarshalJSON(body string) (any, error) {
	var root any
	if err := json.Unmarshal([]byte(body), &root); err != nil {
		return nil, fmt.Errorf("decoding JSON payload: %w", err)
	}
	return root, nil
}

// walkJSONPath follows the declared path from the document root. A
// symbol segment tries the raw symbol key first and only then the
// transformed one; providers key their payloads inconsistently and the
// raw spelling is the one the caller asked about.
func walkJSONPath(root any, path []config.PathSegment, rawSymbol, transformedSymbol string) (any, error) {
	cursor := root
	for _, seg := range path {
		obj, ok := cursor.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("JSON path expects an object, found %T", cursor)
		}
		if seg.Symbol {
			next, ok := obj[rawSymbol]
			if !ok {
				next, ok = obj[transformedSymbol]
			}
			if !ok {
				return nil, fmt.Errorf("missing entry for symbol %s in JSON payload", rawSymbol)
			}
			cursor = next
			continue
		}
		next, ok := obj[seg.Key]
		if !ok {
			return nil, fmt.Errorf("missing key %q in JSON payload", seg.Key)
		}
		cursor = next
	}
	return cursor, nil
}

// valueToString renders a decoded JSON value the way providers mix
// string and number cells.
func valueToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// splitRow turns one history bar into an ordered field sequence.
// A bar is either a JSON array read by position or a single delimited
// string; both shapes must yield the same fields for the same logical
// content. delimiter == 0 selects the array shape.
func splitRow(row any, delimiter rune) ([]string, bool) {
	if delimiter == 0 {
		array, ok := row.([]any)
		if !ok {
			return nil, false
		}
		fields := make([]string, len(array))
		for i, v := range array {
			fields[i] = strings.TrimSpace(valueToString(v))
		}
		return fields, true
	}

	text, ok := row.(string)
	if !ok {
		return nil, false
	}
	parts := strings.Split(text, string(delimiter))
	fields := make([]string, len(parts))
	for i, p := range parts {
		fields[i] = strings.TrimSpace(p)
	}
	return fields, true
}

// splitDelimited splits one line of delimited text, trimming each field
// and stripping one layer of surrounding quotes.
func splitDelimited(line string, delimiter rune) []string {
	parts := strings.Split(line, string(delimiter))
	fields := make([]string, len(parts))
	for i, p := range parts {
		f := strings.TrimSpace(p)
		if len(f) >= 2 && f[0] == '"' && f[len(f)-1] == '"' {
			f = f[1 : len(f)-1]
		}
		fields[i] = f
	}
	return fields
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

// parseDate parses a provider-declared date in the local time zone, at
// midnight.
func parseDate(s, layout string) (time.Time, error) {
	return time.ParseInLocation(layout, strings.TrimSpace(s), time.Local)
}
