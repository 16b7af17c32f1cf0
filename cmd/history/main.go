// Command history prints the daily OHLC series for one symbol, either
// as an aligned table or as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"marketfetch/internal/config"
	"marketfetch/internal/fetch"
	"marketfetch/internal/httpx"
)

func main() {
	var (
		marketCode string
		symbol     string
		root       string
		timeout    int
		asJSON     bool
	)

	flag.StringVar(&marketCode, "market", getenv("MARKET", ""), "market code (e.g. cn, jp)")
	flag.StringVar(&symbol, "symbol", "", "symbol to fetch history for")
	flag.StringVar(&root, "root", getenv("CONFIG_ROOT", "."), "directory holding the assets tree")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 10), "request timeout seconds")
	flag.BoolVar(&asJSON, "json", false, "emit JSON instead of a table")
	flag.Parse()

	if marketCode == "" || symbol == "" {
		log.Fatal("both -market and -symbol are required")
	}

	registry, err := config.NewRegistry(root)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	defer registry.Close()

	m, ok := registry.Get(marketCode)
	if !ok {
		log.Fatalf("unknown market %q", marketCode)
	}

	client := httpx.New(time.Duration(timeout) * time.Second)
	fetcher := fetch.NewHistoryFetcher(m, client, nil)

	res := <-fetcher.FetchAsync(context.Background(), symbol)
	if res.Err != nil {
		log.Fatalf("history %s: %v", symbol, res.Err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res.Candles); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("%-12s %10s %10s %10s %10s\n", "date", "open", "high", "low", "close")
	for _, c := range res.Candles {
		fmt.Printf("%-12s %10.3f %10.3f %10.3f %10.3f\n",
			c.Timestamp.Format("2006-01-02"), c.Open, c.High, c.Low, c.Close)
	}
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
