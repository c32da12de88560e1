package perf

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dTransport/cmd/util"
	"github.com/ValentinKolb/dTransport/rpc/client"
	"github.com/ValentinKolb/dTransport/rpc/common"
	"github.com/ValentinKolb/dTransport/rpc/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// PerfCmd runs request benchmarks against the cluster
	PerfCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for a cluster",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfIndex         = "dtransport-perf"
	perfPath          = "/"
	perfPayloadSizeKB = 1
	perfBulkSize      = 100
	perfNumThreads    = 10
	perfSkip          = make([]string, 0)
	perfKeep          = false
)

func init() {
	key := "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. index,bulk)"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines sending requests"))
	key = "path"
	PerfCmd.Flags().String(key, "/", util.WrapString("Path requested by the get benchmark"))
	key = "index"
	PerfCmd.Flags().String(key, "dtransport-perf", util.WrapString("Index written by the index and bulk benchmarks"))
	key = "payload-size"
	PerfCmd.Flags().Int(key, 1, util.WrapString("Size of the document payload (in KB)"))
	key = "bulk-size"
	PerfCmd.Flags().Int(key, 100, util.WrapString("Documents per bulk request"))
	key = "keep"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Keep the benchmark index instead of deleting it afterwards"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfIndex = viper.GetString("index")
	perfPath = viper.GetString("path")
	perfPayloadSizeKB = viper.GetInt("payload-size")
	perfBulkSize = max(viper.GetInt("bulk-size"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	perfKeep = viper.GetBool("keep")

	return nil
}

// benchmark is one named request pattern
type benchmark struct {
	name string
	send func(ctx context.Context, c *client.Client, i int) error
}

func run(cmd *cobra.Command, _ []string) error {
	c, err := util.NewClient()
	if err != nil {
		return err
	}
	defer c.Close()

	fmt.Println("Performance testing tool for clusters")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	config := c.Config()
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	document := map[string]any{
		"message": strings.Repeat("x", perfPayloadSizeKB*1024),
		"created": time.Now().UTC().Format(time.RFC3339),
	}

	benchmarks := []benchmark{
		{"head", func(ctx context.Context, c *client.Client, _ int) error {
			_, err := c.Request(ctx, transport.Params{Method: http.MethodHead, Path: "/"}, nil)
			return err
		}},
		{"get", func(ctx context.Context, c *client.Client, _ int) error {
			_, err := c.Request(ctx, transport.Params{Method: http.MethodGet, Path: perfPath}, nil)
			return err
		}},
		{"index", func(ctx context.Context, c *client.Client, _ int) error {
			_, err := c.Request(ctx, transport.Params{
				Method: http.MethodPost,
				Path:   "/" + perfIndex + "/_doc",
				Body:   document,
			}, nil)
			return err
		}},
		{"bulk", func(ctx context.Context, c *client.Client, _ int) error {
			body := make([]any, 0, 2*perfBulkSize)
			for range perfBulkSize {
				body = append(body, map[string]any{"index": map[string]any{"_index": perfIndex}}, document)
			}
			_, err := c.Request(ctx, transport.Params{Method: http.MethodPost, Path: "/_bulk", BulkBody: body}, nil)
			return err
		}},
		{"mixed", func(ctx context.Context, c *client.Client, i int) error {
			var err error
			switch i % 3 {
			case 0:
				_, err = c.Request(ctx, transport.Params{Method: http.MethodHead, Path: "/"}, nil)
			case 1:
				_, err = c.Request(ctx, transport.Params{Method: http.MethodGet, Path: perfPath}, nil)
			case 2:
				_, err = c.Request(ctx, transport.Params{Method: http.MethodPost, Path: "/" + perfIndex + "/_doc", Body: document}, nil)
			}
			return err
		}},
	}

	// cleanup
	defer func() {
		if perfKeep || (shouldSkip("index") && shouldSkip("bulk") && shouldSkip("mixed")) {
			return
		}
		_, err := c.Request(context.Background(), transport.Params{Method: http.MethodDelete, Path: "/" + perfIndex}, &transport.Options{Ignore: []int{http.StatusNotFound}})
		if err != nil {
			util.Logger.Warningf("failed to delete benchmark index %s: %v", perfIndex, err)
		}
	}()

	// Create results map
	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks {
		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					if err := bm.send(ctx, c, counter); err != nil {
						util.Logger.Errorf("(%s) - error sending request: %v", bm.name, err)
					}
					counter++
				}
			})
		})

		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Print the stats of every node
	fmt.Println()
	fmt.Println("Nodes:")
	for _, conn := range c.Pool().Connections() {
		stats := conn.Stats()
		fmt.Printf("  %-30s requests=%d failures=%d mean=%s p99=%s\n", conn.ID(), stats.Requests, stats.Failures, stats.MeanLatency, stats.P99Latency)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, config common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Nodes", "RequestTimeout", "MaxRetries", "NodeSelector", "Compression",
		"Threads", "PayloadSizeKB", "BulkSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strings.Join(config.Nodes, ";"),
			config.RequestTimeout.String(),
			strconv.Itoa(config.MaxRetries),
			config.NodeSelector,
			config.Compression,
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfPayloadSizeKB),
			strconv.Itoa(perfBulkSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
