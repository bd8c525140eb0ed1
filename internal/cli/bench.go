package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cvcontext/internal/app"
)

var benchQueries = [][]string{
	{"What programming languages do I know?"},
	{"Where did I study?", "What is my GPA?"},
	{"What machine learning projects have I worked on?"},
	{"What are my technical skills?", "Do I know Python?"},
	{"Tell me about my work experience"},
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare cold, prewarmed and cached retrieval latency",
	Long: `Reset every cache, time a cold query, prewarm, time a set of hot queries
and finally repeat one batch to measure the query cache.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

// BenchReport holds the latencies measured by one bench run.
type BenchReport struct {
	Cold    time.Duration
	Prewarm time.Duration
	Hot     []time.Duration
	Miss    time.Duration
	Hit     time.Duration
}

// Fastest returns the smallest hot latency.
func (r BenchReport) Fastest() time.Duration {
	if len(r.Hot) == 0 {
		return 0
	}
	fastest := r.Hot[0]
	for _, d := range r.Hot[1:] {
		fastest = min(fastest, d)
	}
	return fastest
}

// Average returns the mean hot latency.
func (r BenchReport) Average() time.Duration {
	if len(r.Hot) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range r.Hot {
		total += d
	}
	return total / time.Duration(len(r.Hot))
}

func runBench(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	c, err := initRuntime(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := Bench(ctx, c.Runtime, benchQueries)
	if err != nil {
		return err
	}
	printBench(cmd.OutOrStdout(), report)
	return nil
}

// Bench measures cold start, prewarm, hot and cached latency against rt.
// rt is reset first, so it loses every cached model and connection.
func Bench(ctx context.Context, rt *app.Runtime, batches [][]string) (BenchReport, error) {
	var report BenchReport
	if len(batches) == 0 {
		return report, nil
	}

	rt.Reset()

	start := time.Now()
	if _, err := rt.Fetcher.Fetch(ctx, batches[0]); err != nil {
		return report, fmt.Errorf("cold query: %w", err)
	}
	report.Cold = time.Since(start)

	// холодный запрос уже заполнил кэши
	rt.Reset()

	start = time.Now()
	if err := rt.PrewarmDefaults(ctx); err != nil {
		return report, fmt.Errorf("prewarm: %w", err)
	}
	report.Prewarm = time.Since(start)

	for _, queries := range batches {
		start = time.Now()
		if _, err := rt.Fetcher.Fetch(ctx, queries); err != nil {
			return report, fmt.Errorf("hot query: %w", err)
		}
		report.Hot = append(report.Hot, time.Since(start))
	}

	rt.Queries.Clear()
	repeat := batches[len(batches)-1]
	start = time.Now()
	if _, err := rt.Fetcher.Fetch(ctx, repeat); err != nil {
		return report, fmt.Errorf("cache miss query: %w", err)
	}
	report.Miss = time.Since(start)

	start = time.Now()
	if _, err := rt.Fetcher.Fetch(ctx, repeat); err != nil {
		return report, fmt.Errorf("cache hit query: %w", err)
	}
	report.Hit = time.Since(start)

	return report, nil
}

func printBench(w io.Writer, r BenchReport) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	bold.Fprintln(w, "Retrieval latency")
	fmt.Fprintf(w, "  cold start:   %s\n", round(r.Cold))
	fmt.Fprintf(w, "  prewarm:      %s (one-time)\n", round(r.Prewarm))
	for i, d := range r.Hot {
		fmt.Fprintf(w, "  hot #%d:       %s\n", i+1, round(d))
	}
	fmt.Fprintf(w, "  hot average:  %s\n", round(r.Average()))
	fmt.Fprintf(w, "  cache miss:   %s\n", round(r.Miss))
	fmt.Fprintf(w, "  cache hit:    %s\n", round(r.Hit))

	if fastest := r.Fastest(); fastest > 0 {
		green.Fprintf(w, "Prewarmed queries are %.1fx faster than cold start\n", float64(r.Cold)/float64(fastest))
	}
	if r.Hit > 0 {
		cyan.Fprintf(w, "Cached queries are %.1fx faster than uncached\n", float64(r.Miss)/float64(r.Hit))
	}
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Microsecond)
}
