// Benchmark tool for testing TrueMeter against labelled car listing data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/listings.csv -url http://localhost:8080
//
// This tool:
//   1. Reads car listing data (with odometer fraud labels)
//   2. Sends each listing to TrueMeter for a fraud check
//   3. Compares TrueMeter's verdict with the actual labels
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Listing represents a labelled row from the benchmark dataset.
type Listing struct {
	Make       string
	Model      string
	Year       int
	Mileage    int
	FuelType   string
	Gearbox    string
	Horsepower int
	Price      int
	OfferType  string
	IsFraud    bool
}

// CheckRequest is the TrueMeter API request format.
type CheckRequest struct {
	Make       string `json:"make"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
	ReportedKm int    `json:"reported_km"`
	FuelType   string `json:"fuelType"`
	Gearbox    string `json:"gearbox"`
	Horsepower int    `json:"horsepower"`
	Price      int    `json:"price"`
	OfferType  string `json:"offerType"`
}

// CheckResponse is the TrueMeter API response format.
type CheckResponse struct {
	CheckID      string   `json:"check_id"`
	FraudScore   int      `json:"fraud_score"`
	IsSuspicious bool     `json:"is_suspicious"`
	ExpectedKm   int      `json:"expected_km"`
	Reasons      []string `json:"reasons"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TruePositives  int64 // Fraud flagged as suspicious
	FalsePositives int64 // Clean flagged as suspicious
	TrueNegatives  int64 // Clean passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	TotalProcessed int64
	TotalFraud     int64
	TotalNonFraud  int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labelled listings CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "TrueMeter base URL")
	limit := flag.Int("limit", 10000, "Maximum listings to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	fraudOnly := flag.Bool("fraud-only", false, "Only test fraudulent listings")
	sampleRate := flag.Float64("sample", 1.0, "Sample rate for clean listings (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each listing result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/listings.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║        TRUEMETER BENCHMARK - Odometer Fraud Detection         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:       %s\n", *csvPath)
	fmt.Printf("TrueMeter URL:  %s\n", *baseURL)
	fmt.Printf("Workers:        %d\n", *workers)
	fmt.Printf("Limit:          %d\n", *limit)
	fmt.Printf("Fraud Only:     %v\n", *fraudOnly)
	fmt.Printf("Sample Rate:    %.2f\n", *sampleRate)
	fmt.Println()

	// Check TrueMeter is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: TrueMeter not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure TrueMeter is running:")
		fmt.Println("  go run cmd/truemeter/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ TrueMeter is healthy")

	// Read listing data
	fmt.Printf("\nReading listings from %s...\n", *csvPath)
	listings, err := readListingsCSV(*csvPath, *limit, *fraudOnly, *sampleRate)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d listings\n", len(listings))

	// Count fraud vs clean
	fraudCount := 0
	for _, l := range listings {
		if l.IsFraud {
			fraudCount++
		}
	}
	fmt.Printf("  - Fraud: %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(len(listings)))
	fmt.Printf("  - Clean: %d (%.2f%%)\n", len(listings)-fraudCount, 100*float64(len(listings)-fraudCount)/float64(len(listings)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(listings, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// readListingsCSV reads the labelled dataset. The expected columns follow the
// AutoScout24 export (make, model, year, mileage, fuel, gear, hp, price,
// offerType) plus an is_fraud label column.
func readListingsCSV(path string, limit int, fraudOnly bool, sampleRate float64) ([]Listing, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, names ...string) string {
		for _, name := range names {
			if i, ok := colIndex[name]; ok && i < len(record) {
				return record[i]
			}
		}
		return ""
	}

	var listings []Listing
	sampleCounter := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		isFraud := col(record, "is_fraud", "isfraud", "fraud") == "1"

		// Apply filters
		if fraudOnly && !isFraud {
			continue
		}

		// Sample clean listings
		if !isFraud && sampleRate < 1.0 {
			sampleCounter++
			if float64(sampleCounter%100)/100.0 >= sampleRate {
				continue
			}
		}

		year, _ := strconv.Atoi(col(record, "year"))
		mileage, _ := strconv.Atoi(col(record, "mileage", "reported_km"))
		hp, _ := strconv.Atoi(col(record, "hp", "horsepower"))
		price, _ := strconv.Atoi(col(record, "price"))

		listings = append(listings, Listing{
			Make:       col(record, "make"),
			Model:      col(record, "model"),
			Year:       year,
			Mileage:    mileage,
			FuelType:   col(record, "fuel", "fuel_type"),
			Gearbox:    col(record, "gear", "gearbox"),
			Horsepower: hp,
			Price:      price,
			OfferType:  col(record, "offertype", "offer_type"),
			IsFraud:    isFraud,
		})

		if limit > 0 && len(listings) >= limit {
			break
		}
	}

	return listings, nil
}

func runBenchmark(listings []Listing, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan Listing, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for l := range work {
				start := time.Now()
				result, err := checkListing(client, baseURL, l)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s %s -> %v\n", l.Make, l.Model, err)
					}
					continue
				}

				// Track actual labels
				if l.IsFraud {
					atomic.AddInt64(&metrics.TotalFraud, 1)
				} else {
					atomic.AddInt64(&metrics.TotalNonFraud, 1)
				}

				// Calculate confusion matrix
				predicted := result.IsSuspicious
				actual := l.IsFraud

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					fmt.Printf("%s %-12s %-12s | Year: %d | Km: %7d | Expected: %7d | Fraud: %-5v | Score: %3d\n",
						status,
						l.Make,
						l.Model,
						l.Year,
						l.Mileage,
						result.ExpectedKm,
						l.IsFraud,
						result.FraudScore,
					)
				}
			}
		}()
	}

	// Send work
	for _, l := range listings {
		work <- l
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func checkListing(client *http.Client, baseURL string, l Listing) (*CheckResponse, error) {
	req := CheckRequest{
		Make:       l.Make,
		Model:      l.Model,
		Year:       l.Year,
		ReportedKm: l.Mileage,
		FuelType:   l.FuelType,
		Gearbox:    l.Gearbox,
		Horsepower: l.Horsepower,
		Price:      l.Price,
		OfferType:  l.OfferType,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Fraud:      %d\n", m.TotalFraud)
	fmt.Printf("   Total Clean:      %d\n", m.TotalNonFraud)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                  SUSPECT       CLEAN")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  F  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of flagged cars, how many were actual fraud)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of fraud, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalFraud > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalFraud) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalFraud) * 100
		fmt.Printf("   Fraud Detected:    %d / %d (%.2f%%)\n", m.TruePositives, m.TotalFraud, detectionRate)
		fmt.Printf("   Fraud Missed:      %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalFraud, missRate)
	}
	if m.TotalNonFraud > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalNonFraud) * 100
		fmt.Printf("   False Alarms:      %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalNonFraud, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f checks/sec\n", tps)
	}

	fmt.Println()
}
