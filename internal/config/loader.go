package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"marketfetch/internal/market"
)

// LoadMarket reads a single market definition: the YAML file at
// assets/markets/<slug>.yaml under root plus the symbol list CSV it
// references. The result is validated before it is returned.
func LoadMarket(root, slug string) (*Market, error) {
	path := filepath.Join(root, "assets", "markets", slug+".yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market config %s: %w", path, err)
	}

	var raw rawMarket
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse market config %s: %w", path, err)
	}

	if !strings.EqualFold(raw.Code, slug) {
		return nil, fmt.Errorf("market code mismatch in %s: expected %q, found %q", path, slug, raw.Code)
	}

	m, err := raw.toMarket(root, strings.ToLower(slug))
	if err != nil {
		return nil, fmt.Errorf("market config %s: %w", path, err)
	}
	if err := Validate(m); err != nil {
		return nil, fmt.Errorf("market config %s: %w", path, err)
	}
	return m, nil
}

// LoadMarkets discovers every *.yaml under assets/markets and loads it,
// returning the markets sorted by code.
func LoadMarkets(root string) ([]*Market, error) {
	dir := filepath.Join(root, "assets", "markets")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read market config dir %s: %w", dir, err)
	}

	var markets []*Market
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		slug := strings.TrimSuffix(e.Name(), ".yaml")
		m, err := LoadMarket(root, slug)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}

	sort.Slice(markets, func(i, j int) bool { return markets[i].Code < markets[j].Code })
	return markets, nil
}

// loadSymbolList reads a symbol CSV: one symbol per line, optionally
// followed by a comma and a display name. Blank lines and #-comments
// are skipped.
func loadSymbolList(path string) ([]string, map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read symbol list %s: %w", path, err)
	}

	var symbols []string
	names := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		code := line
		if i := strings.IndexByte(line, ','); i >= 0 {
			code = strings.TrimSpace(line[:i])
			if name := strings.TrimSpace(line[i+1:]); name != "" {
				names[code] = name
			}
		}
		if code != "" {
			symbols = append(symbols, code)
		}
	}
	return symbols, names, nil
}

// Raw YAML shapes. They stay lenient so the validator can report every
// problem at once instead of failing on the first decode error.

type rawMarket struct {
	Code       string                      `yaml:"code"`
	Name       string                      `yaml:"name"`
	Symbols    rawSymbolList               `yaml:"symbols"`
	Thresholds map[string]market.Threshold `yaml:"thresholds"`
	Provider   rawProvider                 `yaml:"provider"`
	Storage    rawStorage                  `yaml:"storage"`
}

type rawSymbolList struct {
	File string `yaml:"file"`
}

type rawStorage struct {
	SnapshotsDir string `yaml:"snapshots_dir"`
	PresetsDir   string `yaml:"presets_dir"`
}

type rawProvider struct {
	Type     string     `yaml:"type"` // json_quote | csv_quote
	Snapshot rawSnap    `yaml:"snapshot"`
	History  rawHistory `yaml:"history"`
}

type rawSnap struct {
	Request        rawRequest      `yaml:"request"`
	Response       rawSnapResponse `yaml:"response"`
	FieldIndices   map[string]int  `yaml:"field_indices"`
	FirewallMarker string          `yaml:"firewall_marker"`
}

type rawSnapResponse struct {
	Type      string   `yaml:"type"` // json_path | delimited
	Path      []string `yaml:"path"`
	Delimiter string   `yaml:"delimiter"`
	SkipLines int      `yaml:"skip_lines"`
}

type rawHistory struct {
	Request  rawRequest         `yaml:"request"`
	Response rawHistoryResponse `yaml:"response"`
	Limit    int                `yaml:"limit"`
}

type rawHistoryResponse struct {
	Type         string     `yaml:"type"` // json_rows | csv_rows
	Path         []string   `yaml:"path"`
	Columns      rawColumns `yaml:"columns"`
	DateLayout   string     `yaml:"date_layout"`
	RowDelimiter string     `yaml:"row_delimiter"`
	Delimiter    string     `yaml:"delimiter"`
	SkipLines    int        `yaml:"skip_lines"`
}

type rawColumns struct {
	Date  int `yaml:"date"`
	Open  int `yaml:"open"`
	High  int `yaml:"high"`
	Low   int `yaml:"low"`
	Close int `yaml:"close"`
}

type rawRequest struct {
	Method      string            `yaml:"method"`
	URLTemplate string            `yaml:"url_template"`
	Headers     map[string]string `yaml:"headers"`
	Transform   rawTransform      `yaml:"code_transform"`
}

// rawTransform accepts either a preset name ("default", "lowercase",
// "uppercase") or a detailed mapping.
type rawTransform struct {
	preset   string
	detailed *CodeTransform
}

func (t *rawTransform) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&t.preset)
	}
	var d struct {
		Lowercase bool   `yaml:"lowercase"`
		Uppercase bool   `yaml:"uppercase"`
		Prefix    string `yaml:"prefix"`
		Suffix    string `yaml:"suffix"`
	}
	if err := node.Decode(&d); err != nil {
		return err
	}
	t.detailed = &CodeTransform{
		Lowercase: d.Lowercase,
		Uppercase: d.Uppercase,
		Prefix:    d.Prefix,
		Suffix:    d.Suffix,
	}
	return nil
}

func (t rawTransform) toTransform() (CodeTransform, error) {
	if t.detailed != nil {
		return *t.detailed, nil
	}
	switch strings.ToLower(strings.TrimSpace(t.preset)) {
	case "", "default":
		return CodeTransform{}, nil
	case "lowercase":
		return CodeTransform{Lowercase: true}, nil
	case "uppercase":
		return CodeTransform{Uppercase: true}, nil
	}
	return CodeTransform{}, fmt.Errorf("unsupported code_transform preset %q", t.preset)
}

func (r rawMarket) toMarket(root, slug string) (*Market, error) {
	if strings.TrimSpace(r.Symbols.File) == "" {
		return nil, fmt.Errorf("symbols.file must be provided")
	}
	symbolPath := resolvePath(root, r.Symbols.File)
	symbols, names, err := loadSymbolList(symbolPath)
	if err != nil {
		return nil, err
	}

	provider, err := r.Provider.toProvider()
	if err != nil {
		return nil, err
	}

	thresholds := r.Thresholds
	if thresholds == nil {
		thresholds = make(map[string]market.Threshold)
	}

	storage := Storage{
		SnapshotsDir: r.Storage.SnapshotsDir,
		PresetsDir:   r.Storage.PresetsDir,
	}
	if storage.SnapshotsDir == "" {
		storage.SnapshotsDir = filepath.Join("assets", "snapshots", slug)
	}
	if storage.PresetsDir == "" {
		storage.PresetsDir = filepath.Join("assets", "presets", slug)
	}
	storage.SnapshotsDir = resolvePath(root, storage.SnapshotsDir)
	storage.PresetsDir = resolvePath(root, storage.PresetsDir)

	return &Market{
		Code:       r.Code,
		Name:       r.Name,
		Symbols:    symbols,
		Names:      names,
		Thresholds: thresholds,
		Provider:   provider,
		Storage:    storage,
	}, nil
}

func (r rawProvider) toProvider() (Provider, error) {
	snapshot, err := r.Snapshot.toSnapshot()
	if err != nil {
		return Provider{}, err
	}
	history, err := r.History.toHistory()
	if err != nil {
		return Provider{}, err
	}

	switch r.Type {
	case "json_quote":
		return Provider{JSONQuote: &JSONQuoteProvider{Snapshot: snapshot, History: history}}, nil
	case "csv_quote":
		return Provider{CSVQuote: &CSVQuoteProvider{Snapshot: snapshot, History: history}}, nil
	}
	return Provider{}, fmt.Errorf("unsupported provider type %q", r.Type)
}

func (r rawSnap) toSnapshot() (SnapshotConfig, error) {
	request, err := r.Request.toRequest()
	if err != nil {
		return SnapshotConfig{}, err
	}

	cfg := SnapshotConfig{
		Request:        request,
		FieldIndices:   r.FieldIndices,
		FirewallMarker: r.FirewallMarker,
	}

	switch r.Response.Type {
	case "json_path":
		cfg.Response.JSON = &JSONResponse{Path: parsePath(r.Response.Path)}
	case "delimited":
		d, err := singleRune(r.Response.Delimiter, "snapshot.response.delimiter")
		if err != nil {
			return SnapshotConfig{}, err
		}
		cfg.Response.Delimited = &DelimitedResponse{Delimiter: d, SkipLines: r.Response.SkipLines}
	default:
		return SnapshotConfig{}, fmt.Errorf("unsupported snapshot response type %q", r.Response.Type)
	}
	return cfg, nil
}

func (r rawHistory) toHistory() (HistoryConfig, error) {
	request, err := r.Request.toRequest()
	if err != nil {
		return HistoryConfig{}, err
	}

	cfg := HistoryConfig{Request: request, Limit: r.Limit}
	columns := HistoryColumns{
		Date:  r.Response.Columns.Date,
		Open:  r.Response.Columns.Open,
		High:  r.Response.Columns.High,
		Low:   r.Response.Columns.Low,
		Close: r.Response.Columns.Close,
	}

	switch r.Response.Type {
	case "json_rows":
		rows := &JSONRowsResponse{
			Path:       parsePath(r.Response.Path),
			Columns:    columns,
			DateLayout: r.Response.DateLayout,
		}
		if r.Response.RowDelimiter != "" {
			d, err := singleRune(r.Response.RowDelimiter, "history.response.row_delimiter")
			if err != nil {
				return HistoryConfig{}, err
			}
			rows.RowDelimiter = d
		}
		cfg.JSONRows = rows
	case "csv_rows":
		d, err := singleRune(r.Response.Delimiter, "history.response.delimiter")
		if err != nil {
			return HistoryConfig{}, err
		}
		cfg.CSVRows = &CSVRowsResponse{
			Delimiter:  d,
			SkipLines:  r.Response.SkipLines,
			Columns:    columns,
			DateLayout: r.Response.DateLayout,
		}
	default:
		return HistoryConfig{}, fmt.Errorf("unsupported history response type %q", r.Response.Type)
	}
	return cfg, nil
}

func (r rawRequest) toRequest() (Request, error) {
	transform, err := r.Transform.toTransform()
	if err != nil {
		return Request{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = "GET"
	}
	return Request{
		Method:      method,
		URLTemplate: r.URLTemplate,
		Headers:     r.Headers,
		Transform:   transform,
	}, nil
}

// parsePath turns the YAML path entries into segments; the literal
// "{symbol}" entry becomes the current-symbol marker.
func parsePath(entries []string) []PathSegment {
	segments := make([]PathSegment, 0, len(entries))
	for _, e := range entries {
		if e == "{symbol}" {
			segments = append(segments, PathSegment{Symbol: true})
		} else {
			segments = append(segments, PathSegment{Key: e})
		}
	}
	return segments
}

func singleRune(s, field string) (rune, error) {
	runes := []rune(s)
	if len(runes) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", field, s)
	}
	return runes[0], nil
}

func resolvePath(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
