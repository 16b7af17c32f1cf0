package market

import (
	"math"
	"time"
)

// StockData is the normalized snapshot shape produced by all providers.
type StockData struct {
	Market     string  `json:"market"`
	Name       string  `json:"name"`
	Symbol     string  `json:"symbol"`
	Curr       float64 `json:"curr"`
	PrevClosed float64 `json:"prev_closed"`
	Open       float64 `json:"open"`
	Increase   float64 `json:"increase"`
	Highest    float64 `json:"highest"`
	Lowest     float64 `json:"lowest"`
	TurnOver   float64 `json:"turn_over"`
	Amp        float64 `json:"amp"`
	TM         float64 `json:"tm"`
}

// Candle is one OHLC bar of a symbol's daily history.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// Threshold is an inclusive [Lower, Upper] band for one metric.
// Disabled thresholds are kept around so the UI can re-enable them
// without losing the bounds.
type Threshold struct {
	Lower   float64 `json:"lower" yaml:"lower"`
	Upper   float64 `json:"upper" yaml:"upper"`
	Enabled bool    `json:"enabled" yaml:"enabled"`
}

// Metric pairs a StockData field key with its display label.
type Metric struct {
	Key   string
	Label string
}

// Metrics lists every numeric field that can be filtered by thresholds.
var Metrics = []Metric{
	{"curr", "Last Price"},
	{"prevClosed", "Previous Close"},
	{"open", "Open"},
	{"increase", "Change (%)"},
	{"highest", "Intraday High"},
	{"lowest", "Intraday Low"},
	{"turnOver", "Turnover"},
	{"amp", "Amplitude"},
	{"tm", "TM"},
}

// MetricValue returns the named metric of s, or false for unknown keys.
func (s *StockData) MetricValue(key string) (float64, bool) {
	switch key {
	case "curr":
		return s.Curr, true
	case "prevClosed":
		return s.PrevClosed, true
	case "open":
		return s.Open, true
	case "increase":
		return s.Increase, true
	case "highest":
		return s.Highest, true
	case "lowest":
		return s.Lowest, true
	case "turnOver":
		return s.TurnOver, true
	case "amp":
		return s.Amp, true
	case "tm":
		return s.TM, true
	}
	return 0, false
}

// FilterSymbols returns the symbols whose metrics fall inside every
// enabled threshold. Metrics without a threshold entry, and threshold
// keys that do not map to a metric, never exclude a row.
func FilterSymbols(data []StockData, thresholds map[string]Threshold) []string {
	out := make([]string, 0, len(data))
	for i := range data {
		if withinThresholds(&data[i], thresholds) {
			out = append(out, data[i].Symbol)
		}
	}
	return out
}

func withinThresholds(s *StockData, thresholds map[string]Threshold) bool {
	for key, t := range thresholds {
		if !t.Enabled {
			continue
		}
		v, ok := s.MetricValue(key)
		if !ok {
			continue
		}
		if v < t.Lower || v > t.Upper {
			return false
		}
	}
	return true
}

// EnsureMetricThresholds fills in a disabled zero threshold for every
// known metric so downstream views stay in sync with the metric list.
func EnsureMetricThresholds(thresholds map[string]Threshold) {
	for _, m := range Metrics {
		if _, ok := thresholds[m.Key]; !ok {
			thresholds[m.Key] = Threshold{}
		}
	}
}

const epsilon = 1e-9

// PercentChange is the signed change from prev to curr in percent,
// 0 when the previous close is effectively zero.
func PercentChange(curr, prev float64) float64 {
	if math.Abs(prev) < epsilon {
		return 0
	}
	return (curr - prev) / prev * 100
}

// Amplitude is the intraday high-low spread relative to the previous
// close in percent, 0 when the previous close is effectively zero.
func Amplitude(high, low, prev float64) float64 {
	if math.Abs(prev) < epsilon {
		return 0
	}
	return (high - low) / prev * 100
}
