package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Command-line client for the chat stream API",
	Long: `chatctl drives a running chat stream API from the terminal.

Examples:
  chatctl conversation create --title "Trip planning"
  chatctl conversation messages 7 --limit 20
  chatctl chat send 7 "Hello"
  chatctl chat status sess_0123...
  chatctl chat cancel sess_0123...`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(conversationCmd)
	rootCmd.AddCommand(chatCmd)

	rootCmd.PersistentFlags().String("api-url", envOr("CHAT_STREAM_API_URL", "http://localhost:8080"), "Base URL of the API")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func clientFor(cmd *cobra.Command) *apiClient {
	baseURL, _ := cmd.Flags().GetString("api-url")
	return newAPIClient(baseURL)
}
