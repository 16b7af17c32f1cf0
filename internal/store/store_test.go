package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfetch/internal/market"
)

func sampleData() []market.StockData {
	return []market.StockData{
		{
			Market: "CN", Name: "Ping An", Symbol: "SZ000001",
			Curr: 10.5, PrevClosed: 10.0, Open: 10.2, Increase: 5.0,
			Highest: 11.0, Lowest: 9.5, TurnOver: 1.0, Amp: 15.0, TM: 10.5,
		},
		{
			Market: "CN", Name: "Vanke", Symbol: "SZ000002",
			Curr: 8.1, PrevClosed: 8.0, Open: 8.0, Increase: 1.25,
			Highest: 8.2, Lowest: 7.9, TurnOver: 0.5, Amp: 3.75, TM: 4.05,
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	path := SnapshotPath(t.TempDir(), time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	require.Equal(t, "2024-03-15.csv", filepath.Base(path))

	data := sampleData()
	require.NoError(t, SaveSnapshots(path, data))

	loaded, err := LoadSnapshots(path)
	require.NoError(t, err)
	require.Equal(t, data, loaded)
}

func TestSaveSnapshotsReplacesExistingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "2024-03-15.csv")
	require.NoError(t, SaveSnapshots(path, sampleData()))
	require.NoError(t, SaveSnapshots(path, sampleData()[:1]))

	loaded, err := LoadSnapshots(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestLoadSnapshotsSkipsMalformedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snap.csv")
	content := "market,stockName,stockCode,curr,prevClosed,open,increase,highest,lowest,turnOver,amp,tm\n" +
		"CN,Ping An,SZ000001,10.5,10,10.2,5,11,9.5,1,15,10.5\n" +
		"CN,Broken,SZ000002,not-a-number,8,8,1.25,8.2,7.9,0.5,3.75,4.05\n" +
		"CN,Short,SZ000003,1\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loaded, err := LoadSnapshots(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "SZ000001", loaded[0].Symbol)
}

func TestLoadSnapshotsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadSnapshots(filepath.Join(t.TempDir(), "absent.csv"))
	require.Error(t, err)
}

func TestPresetRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := PresetPath(dir, "aggressive")

	thresholds := map[string]market.Threshold{
		"increase": {Lower: 2, Upper: 9, Enabled: true},
		"amp":      {Lower: 0, Upper: 20},
	}
	require.NoError(t, SavePreset(path, thresholds))

	loaded, err := LoadPreset(path)
	require.NoError(t, err)
	require.Equal(t, thresholds["increase"], loaded["increase"])
	require.Equal(t, thresholds["amp"], loaded["amp"])

	// Every known metric gains a disabled placeholder entry.
	for _, m := range market.Metrics {
		_, ok := loaded[m.Key]
		require.Truef(t, ok, "missing threshold entry for %s", m.Key)
	}
}

func TestListPresets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, SavePreset(PresetPath(dir, "one"), nil))
	require.NoError(t, SavePreset(PresetPath(dir, "two"), nil))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	names, err := ListPresets(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"one", "two"}, names)

	names, err = ListPresets(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Empty(t, names)
}
