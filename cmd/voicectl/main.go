// voicectl 是 VoiceGuard 后端的命令行客户端
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"VoiceGuardBackend/internal/loadtest"
)

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)

	client := func() *apiClient {
		return newAPIClient(serverURL, timeout)
	}

	rootCmd := &cobra.Command{
		Use:           "voicectl",
		Short:         "VoiceGuard backend client",
		Long:          `voicectl - control live capture, feedback and reports on a VoiceGuard backend`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("VOICEGUARD_SERVER", "http://localhost:5000"), "VoiceGuard server URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "request timeout")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording from the server microphone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().call(http.MethodPost, "/record-audio", nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, resp.Message)
			return nil
		},
	}

	var filename string
	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and save the WAV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body interface{}
			if filename != "" {
				body = map[string]string{"filename": filename}
			}
			resp, err := client().call(http.MethodPost, "/stop-recording", body)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Saved %s\n", resp.FilePath)
			return nil
		},
	}
	stopCmd.Flags().StringVar(&filename, "filename", "", "output file name (default recorded_audio.wav)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current capture status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().call(http.MethodGet, "/recording-status", nil)
			if err != nil {
				return err
			}
			var status struct {
				Active    bool   `json:"active"`
				SessionID string `json:"session_id"`
				Chunks    int    `json:"chunks"`
				Samples   int    `json:"samples"`
				Dropped   int64  `json:"dropped"`
			}
			if err := json.Unmarshal(resp.Data, &status); err != nil {
				return err
			}
			if !status.Active {
				fmt.Fprintln(out, "idle")
				return nil
			}
			fmt.Fprintf(out, "recording session=%s chunks=%d samples=%d dropped=%d\n",
				status.SessionID, status.Chunks, status.Samples, status.Dropped)
			return nil
		},
	}

	var feedbackType string
	var rating int
	feedbackCmd := &cobra.Command{
		Use:   "feedback [text]",
		Short: "Send feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]interface{}{"feedback": args[0], "type": feedbackType}
			if cmd.Flags().Changed("rating") {
				body["rating"] = rating
			}
			resp, err := client().call(http.MethodPost, "/api/feedback", body)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, resp.Message)
			return nil
		},
	}
	feedbackCmd.Flags().StringVar(&feedbackType, "type", "general", "feedback type: general, bug, suggestion")
	feedbackCmd.Flags().IntVar(&rating, "rating", 0, "rating from 1 to 5")

	var outputPath string
	downloadCmd := &cobra.Command{
		Use:   "download [report]",
		Short: "Download a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := client().download(args[0], outputPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Downloaded %s\n", path)
			return nil
		},
	}
	downloadCmd.Flags().StringVarP(&outputPath, "output", "o", "", "destination file or directory")

	var email string
	shareCmd := &cobra.Command{
		Use:   "share [report]",
		Short: "Email a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client().call(http.MethodPost, "/share-report", map[string]string{
				"email":    email,
				"filename": args[0],
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(out, resp.Message)
			return nil
		},
	}
	shareCmd.Flags().StringVar(&email, "email", "", "recipient address")
	shareCmd.MarkFlagRequired("email")

	var (
		benchClients  int
		benchDuration time.Duration
		benchRPS      int
	)
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test the read-only endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadtest.DefaultHTTPLoadTestConfig(strings.TrimRight(serverURL, "/"))
			cfg.ConcurrentClients = benchClients
			cfg.Duration = benchDuration
			cfg.TargetRPS = benchRPS
			cfg.Timeout = timeout

			result, err := loadtest.NewHTTPLoadTester(cfg).Run(cmd.Context())
			if err != nil {
				return err
			}
			printBenchResult(out, result)
			return nil
		},
	}
	benchCmd.Flags().IntVar(&benchClients, "clients", 4, "concurrent clients")
	benchCmd.Flags().DurationVar(&benchDuration, "duration", 10*time.Second, "test duration")
	benchCmd.Flags().IntVar(&benchRPS, "rps", 0, "target requests per second (0 = unlimited)")

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, feedbackCmd, downloadCmd, shareCmd, benchCmd)
	return rootCmd
}

func printBenchResult(out io.Writer, result *loadtest.HTTPLoadTestResult) {
	fmt.Fprintf(out, "requests=%d ok=%d failed=%d rps=%.1f\n",
		result.TotalRequests, result.SuccessfulRequests, result.FailedRequests, result.RequestsPerSecond)
	fmt.Fprintf(out, "latency avg=%.2fms p50=%.2fms p95=%.2fms p99=%.2fms\n",
		result.AvgLatency, result.P50Latency, result.P95Latency, result.P99Latency)

	paths := make([]string, 0, len(result.EndpointStats))
	for path := range result.EndpointStats {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		stats := result.EndpointStats[path]
		fmt.Fprintf(out, "  %-24s %6d req %4d failed avg=%.2fms\n",
			path, stats.TotalRequests, stats.FailedRequests, stats.AvgLatency)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
