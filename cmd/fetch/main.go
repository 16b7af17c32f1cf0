// Command fetch pulls one market's snapshot batch, prints the rows that
// pass the configured thresholds, and writes the day's CSV file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"marketfetch/internal/config"
	"marketfetch/internal/fetch"
	"marketfetch/internal/httpx"
	"marketfetch/internal/market"
	"marketfetch/internal/store"
)

func main() {
	var (
		marketCode  string
		root        string
		concurrency int
		timeout     int
		out         string
		preset      string
	)

	flag.StringVar(&marketCode, "market", getenv("MARKET", ""), "market code to fetch (e.g. cn, jp)")
	flag.StringVar(&root, "root", getenv("CONFIG_ROOT", "."), "directory holding the assets tree")
	flag.IntVar(&concurrency, "concurrency", getenvInt("CONCURRENT_REQUESTS", fetch.DefaultConcurrency), "max in-flight requests")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "per-request timeout seconds")
	flag.StringVar(&out, "out", "", "snapshot CSV path (default <storage>/<date>.csv)")
	flag.StringVar(&preset, "preset", "", "threshold preset name to filter with (default: thresholds from the market config)")
	flag.Parse()

	if marketCode == "" {
		log.Fatal("missing -market (or MARKET env)")
	}

	registry, err := config.NewRegistry(root)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	defer registry.Close()

	m, ok := registry.Get(marketCode)
	if !ok {
		log.Fatalf("unknown market %q, have: %s", marketCode, knownMarkets(registry))
	}

	thresholds := m.Thresholds
	if preset != "" {
		thresholds, err = store.LoadPreset(store.PresetPath(m.Storage.PresetsDir, preset))
		if err != nil {
			log.Fatalf("preset %q: %v", preset, err)
		}
	}

	client := httpx.New(time.Duration(timeout) * time.Second)
	fetcher := fetch.NewSnapshotFetcher(m, m.Symbols, fetch.SnapshotOptions{
		Concurrency: concurrency,
		Client:      client,
	})

	ctx := context.Background()

	stop := make(chan struct{})
	go reportProgress(fetcher, stop)

	start := time.Now()
	data, err := fetcher.FetchAll(ctx)
	close(stop)
	fmt.Fprint(os.Stderr, "\r\033[K")
	if err != nil {
		log.Fatalf("fetch %s: %v", m.Code, err)
	}
	log.Printf("fetched %d/%d symbols in %s", len(data), len(m.Symbols), time.Since(start).Round(time.Millisecond))

	matched := market.FilterSymbols(data, thresholds)
	for _, symbol := range matched {
		fmt.Println(symbol)
	}
	log.Printf("%d symbols passed thresholds", len(matched))

	if out == "" {
		out = store.SnapshotPath(m.Storage.SnapshotsDir, time.Now())
	}
	if err := store.SaveSnapshots(out, data); err != nil {
		log.Fatalf("save snapshots: %v", err)
	}
	log.Printf("snapshots written to %s", out)
}

func reportProgress(f *fetch.SnapshotFetcher, stop <-chan struct{}) {
	t := time.NewTicker(200 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			done, total := f.Progress()
			fmt.Fprintf(os.Stderr, "\rfetching %d/%d", done, total)
		case <-stop:
			return
		}
	}
}

func knownMarkets(r *config.Registry) string {
	s := ""
	for i, m := range r.Markets() {
		if i > 0 {
			s += ", "
		}
		s += m.Code
	}
	return s
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
