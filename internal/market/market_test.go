package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricValueCoversEveryMetric(t *testing.T) {
	t.Parallel()

	s := StockData{
		Curr: 1, PrevClosed: 2, Open: 3, Increase: 4,
		Highest: 5, Lowest: 6, TurnOver: 7, Amp: 8, TM: 9,
	}

	for _, m := range Metrics {
		v, ok := s.MetricValue(m.Key)
		require.Truef(t, ok, "metric %s not resolvable", m.Key)
		require.NotZero(t, v)
	}

	_, ok := s.MetricValue("volume")
	require.False(t, ok)
}

func TestFilterSymbols(t *testing.T) {
	t.Parallel()

	data := []StockData{
		{Symbol: "A", Increase: 5.0, Amp: 10.0},
		{Symbol: "B", Increase: -2.0, Amp: 10.0},
		{Symbol: "C", Increase: 3.0, Amp: 40.0},
	}

	thresholds := map[string]Threshold{
		"increase": {Lower: 0, Upper: 9, Enabled: true},
		"amp":      {Lower: 0, Upper: 20, Enabled: true},
		// Disabled bands never exclude.
		"curr": {Lower: 100, Upper: 200},
		// Unknown keys never exclude.
		"volume": {Lower: 1, Upper: 2, Enabled: true},
	}

	require.Equal(t, []string{"A"}, FilterSymbols(data, thresholds))
}

func TestFilterSymbolsBoundsAreInclusive(t *testing.T) {
	t.Parallel()

	data := []StockData{{Symbol: "EDGE", Increase: 9.0}}
	thresholds := map[string]Threshold{
		"increase": {Lower: 9, Upper: 9, Enabled: true},
	}

	require.Equal(t, []string{"EDGE"}, FilterSymbols(data, thresholds))
}

func TestFilterSymbolsNoThresholds(t *testing.T) {
	t.Parallel()

	data := []StockData{{Symbol: "A"}, {Symbol: "B"}}
	require.Equal(t, []string{"A", "B"}, FilterSymbols(data, nil))
}

func TestEnsureMetricThresholds(t *testing.T) {
	t.Parallel()

	thresholds := map[string]Threshold{
		"increase": {Lower: 1, Upper: 2, Enabled: true},
	}
	EnsureMetricThresholds(thresholds)

	require.Len(t, thresholds, len(Metrics))
	require.Equal(t, Threshold{Lower: 1, Upper: 2, Enabled: true}, thresholds["increase"])
	require.Equal(t, Threshold{}, thresholds["amp"])
}

func TestPercentChange(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 5.0, PercentChange(10.5, 10.0), 1e-9)
	require.InDelta(t, -2.5, PercentChange(9.75, 10.0), 1e-9)
	require.Zero(t, PercentChange(10.5, 0))
	require.Zero(t, PercentChange(10.5, 1e-12))
}

func TestAmplitude(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 15.0, Amplitude(11.0, 9.5, 10.0), 1e-9)
	require.Zero(t, Amplitude(11.0, 9.5, 0))
}
