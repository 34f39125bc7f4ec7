package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/gaolou/ssefire/internal/stats"
)

// PrintReport outputs a human-readable summary of the finished run.
func PrintReport(w io.Writer, s stats.Summary) {
	fmt.Fprintln(w, "\n--- Streaming Load Test Results ---")
	fmt.Fprintf(w, "Requests:          %d\n", s.TotalRequests)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successful)
	fmt.Fprintf(w, "Failed:            %d\n", s.Failed)
	fmt.Fprintf(w, "Success Rate:      %.2f %%\n", s.SuccessRate)
	fmt.Fprintf(w, "Actual Duration:   %.2f s\n", s.ActualDuration)
	fmt.Fprintf(w, "Total Chunks:      %d\n", s.TotalChunks)
	fmt.Fprintf(w, "Total Tokens:      %d\n", s.TotalTokens)

	if s.Successful > 0 {
		fmt.Fprintln(w, "\nLatency (successful requests):")
		fmt.Fprintf(w, "  Avg Response:    %.2f ms\n", s.AvgResponseTime)
		fmt.Fprintf(w, "  Avg TTFB:        %.2f ms\n", s.AvgTTFB)
		fmt.Fprintf(w, "  Avg TTFT:        %.2f ms\n", s.AvgTTFT)
		fmt.Fprintf(w, "  Avg TPOT:        %.2f ms/token\n", s.AvgTPOT)
		fmt.Fprintf(w, "  Avg Throughput:  %.2f tokens/s\n", s.AvgThroughput)

		fmt.Fprintln(w, "\nPercentiles (ms):")
		fmt.Fprintf(w, "  TTFT:            P90=%.2f  P95=%.2f  P99=%.2f\n", s.TTFT.P90, s.TTFT.P95, s.TTFT.P99)
		fmt.Fprintf(w, "  TPOT:            P90=%.2f  P95=%.2f  P99=%.2f\n", s.TPOT.P90, s.TPOT.P95, s.TPOT.P99)
		fmt.Fprintf(w, "  TTFB:            P90=%.2f  P95=%.2f  P99=%.2f\n", s.TTFB.P90, s.TTFB.P95, s.TTFB.P99)

		fmt.Fprintln(w, "\nResponse Time Distribution (ms):")
		fmt.Fprintf(w, "  Min=%.2f  Mean=%.2f  P50=%.2f  P90=%.2f  P99=%.2f  Max=%.2f\n",
			s.ResponseTimes.Min, s.ResponseTimes.Mean, s.ResponseTimes.P50,
			s.ResponseTimes.P90, s.ResponseTimes.P99, s.ResponseTimes.Max)
	}

	if len(s.Threads) > 0 {
		fmt.Fprintln(w, "\nPer-Thread Averages:")
		for _, t := range s.Threads {
			fmt.Fprintf(w, "  - thread %d: requests=%d, ttft=%.2fms, tpot=%.2fms, response=%.2fms, throughput=%.2f tokens/s\n",
				t.WorkerID, t.Requests, t.AvgTTFT, t.AvgTPOT, t.AvgResponseTime, t.AvgThroughput)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted summary.
func PrintJSONReport(w io.Writer, s stats.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
