// Command dataghost is a terminal client for the Data Ghost Answer Service.
// It loads a CSV file locally and holds a conversation about it.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
	"github.com/JonMunkholm/dataghost/internal/logging"
)

var (
	// Global flags
	apiURL   string
	timeout  time.Duration
	logLevel string

	logger = logging.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "dataghost",
	Short: "Ask questions about a CSV file",
	Long: `dataghost loads a CSV file, sends it as context to the Data Ghost
Answer Service and holds a conversation about its contents.

The service address comes from --api-url, then ANSWER_SERVICE_URL or API_URL.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			logger = logging.New(cmd.ErrOrStderr(), logLevel, "text")
			slog.SetDefault(logger)
		}
		return nil
	},
}

func init() {
	_ = godotenv.Load()

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultAPIURL(), "Answer Service base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", answer.DefaultTimeout, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log to stderr at this level (debug, info, warn, error)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(filesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Debug("command failed", "error", err)
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func defaultAPIURL() string {
	for _, key := range []string{"ANSWER_SERVICE_URL", "API_URL"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "http://localhost:8000"
}

func newClient() *answer.Client {
	return answer.NewClient(answer.Options{BaseURL: apiURL, Timeout: timeout})
}
