package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
)

// CLI flags
var (
	apiURL   = flag.String("api-url", "http://127.0.0.1:3000", "liveprice API base URL")
	apiKey   = flag.String("api-key", "", "API key for authenticated requests")
	runs     = flag.Int("runs", 3, "Number of runs per ticker for averaging")
	parallel = flag.Int("parallel", 1, "Tickers requested concurrently in each round")
	tickers  = flag.String("tickers", "AAPL,MSFT,BRK-B,^GSPC,EURUSD=X", "Comma-separated tickers")
	output   = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	StatusCode int    `json:"status_code"`
	Price      string `json:"price,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type tickerAverages struct {
	TotalMs float64 `json:"total_ms"`
	MinMs   int64   `json:"min_ms"`
	MaxMs   int64   `json:"max_ms"`
}

type tickerResult struct {
	Ticker   string          `json:"ticker"`
	Runs     []runResult     `json:"runs"`
	Averages *tickerAverages `json:"averages,omitempty"`

	// DistinctPrices counts different price strings across successful runs.
	// Live prices move, but a count close to the run count under -parallel
	// is worth a look.
	DistinctPrices int `json:"distinct_prices"`
}

type benchmarkReport struct {
	Timestamp     string         `json:"timestamp"`
	APIURL        string         `json:"api_url"`
	RunsPerTicker int            `json:"runs_per_ticker"`
	Parallel      int            `json:"parallel"`
	Results       []tickerResult `json:"results"`
}

func main() {
	flag.Parse()

	list := splitTickers(*tickers)
	if len(list) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no tickers given")
		os.Exit(1)
	}

	fmt.Println("=== liveprice Benchmark ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Tickers:   %s\n", strings.Join(list, ", "))
	fmt.Printf("Runs:      %d\n", *runs)
	fmt.Printf("Parallel:  %d\n", *parallel)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	client := &http.Client{Timeout: 90 * time.Second}

	if err := checkAPI(client, *apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure liveprice is running (e.g. go run ./cmd/liveprice)\n")
		os.Exit(1)
	}

	report := benchmarkReport{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		APIURL:        *apiURL,
		RunsPerTicker: *runs,
		Parallel:      *parallel,
	}

	results := make([]tickerResult, len(list))
	for i, t := range list {
		results[i].Ticker = t
	}

	var mu sync.Mutex
	for run := 1; run <= *runs; run++ {
		fmt.Printf("Round %d/%d ...\n", run, *runs)

		g, ctx := errgroup.WithContext(context.Background())
		g.SetLimit(max(1, *parallel))
		for i, t := range list {
			g.Go(func() error {
				rr := benchmarkTicker(ctx, client, t, run)
				mu.Lock()
				results[i].Runs = append(results[i].Runs, rr)
				mu.Unlock()
				if rr.Success {
					fmt.Printf("  %-10s OK  %5dms  %s\n", t, rr.TotalMs, rr.Price)
				} else {
					fmt.Printf("  %-10s FAILED: %s\n", t, rr.Error)
				}
				return nil
			})
		}
		_ = g.Wait()
		fmt.Println()
	}

	for i := range results {
		results[i].Averages = computeAverages(results[i].Runs)
		results[i].DistinctPrices = distinctPrices(results[i].Runs)
	}
	report.Results = results

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func splitTickers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func checkAPI(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/healthz")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func benchmarkTicker(ctx context.Context, client *http.Client, ticker string, run int) runResult {
	rr := runResult{Run: run}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		*apiURL+"/price/"+url.PathEscape(ticker), nil)
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	rr.TotalMs = time.Since(start).Milliseconds()
	rr.StatusCode = resp.StatusCode
	if err != nil {
		rr.Error = fmt.Sprintf("read error: %v", err)
		return rr
	}

	var text string
	if err := json.Unmarshal(body, &text); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}
	if resp.StatusCode != http.StatusOK {
		rr.Error = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
		return rr
	}

	rr.Success = true
	rr.Price = text
	return rr
}

func computeAverages(runs []runResult) *tickerAverages {
	var successCount int
	var avg tickerAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		if successCount == 0 || r.TotalMs < avg.MinMs {
			avg.MinMs = r.TotalMs
		}
		if r.TotalMs > avg.MaxMs {
			avg.MaxMs = r.TotalMs
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
	}

	if successCount == 0 {
		return nil
	}
	avg.TotalMs /= float64(successCount)
	return &avg
}

func distinctPrices(runs []runResult) int {
	seen := map[string]struct{}{}
	for _, r := range runs {
		if r.Success {
			seen[r.Price] = struct{}{}
		}
	}
	return len(seen)
}

func printTable(results []tickerResult) {
	sort.Slice(results, func(i, j int) bool { return results[i].Ticker < results[j].Ticker })

	fmt.Println(strings.Repeat("─", 72))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Ticker\tAvg Latency\tMin\tMax\tOK\tDistinct\n")
	fmt.Fprintf(w, "──────\t───────────\t───\t───\t──\t────────\n")

	for _, r := range results {
		ok := 0
		for _, run := range r.Runs {
			if run.Success {
				ok++
			}
		}
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\tFAILED\t-\t-\t0/%d\t-\n", r.Ticker, len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%dms\t%dms\t%dms\t%d/%d\t%d\n",
			r.Ticker,
			int64(r.Averages.TotalMs),
			r.Averages.MinMs,
			r.Averages.MaxMs,
			ok, len(r.Runs),
			r.DistinctPrices,
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 72))
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
