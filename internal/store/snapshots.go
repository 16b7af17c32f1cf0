// Package store persists fetch results between sessions: snapshot CSVs
// per market and day, and threshold presets as JSON.
package store

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"marketfetch/internal/market"
)

// snapshotHeader fixes the CSV column order. Readers tolerate extra
// trailing columns but never reordering.
var snapshotHeader = []string{
	"market", "stockName", "stockCode",
	"curr", "prevClosed", "open", "increase",
	"highest", "lowest", "turnOver", "amp", "tm",
}

// SnapshotPath names the snapshot file for one market and day.
func SnapshotPath(dir string, day time.Time) string {
	return filepath.Join(dir, day.Format("2006-01-02")+".csv")
}

// SaveSnapshots writes the batch to path, creating parent directories
// as needed. An existing file for the same day is replaced.
func SaveSnapshots(path string, data []market.StockData) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(snapshotHeader); err != nil {
		return err
	}
	for i := range data {
		if err := w.Write(snapshotRecord(&data[i])); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing snapshot file: %w", err)
	}
	return f.Close()
}

// LoadSnapshots reads a snapshot file back. Rows that fail to parse
// are skipped with a log line rather than failing the whole load;
// snapshot files are cache, not source of truth.
func LoadSnapshots(path string) ([]market.StockData, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	out := make([]market.StockData, 0, len(records)-1)
	for _, rec := range records[1:] {
		s, ok := snapshotFromRecord(rec)
		if !ok {
			log.Printf("skipping malformed snapshot row in %s: %v", path, rec)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func snapshotRecord(s *market.StockData) []string {
	num := func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return []string{
		s.Market, s.Name, s.Symbol,
		num(s.Curr), num(s.PrevClosed), num(s.Open), num(s.Increase),
		num(s.Highest), num(s.Lowest), num(s.TurnOver), num(s.Amp), num(s.TM),
	}
}

func snapshotFromRecord(rec []string) (market.StockData, bool) {
	if len(rec) < len(snapshotHeader) {
		return market.StockData{}, false
	}

	nums := make([]float64, 9)
	for i := range nums {
		v, err := strconv.ParseFloat(rec[3+i], 64)
		if err != nil {
			return market.StockData{}, false
		}
		nums[i] = v
	}

	return market.StockData{
		Market:     rec[0],
		Name:       rec[1],
		Symbol:     rec[2],
		Curr:       nums[0],
		PrevClosed: nums[1],
		Open:       nums[2],
		Increase:   nums[3],
		Highest:    nums[4],
		Lowest:     nums[5],
		TurnOver:   nums[6],
		Amp:        nums[7],
		TM:         nums[8],
	}, true
}
