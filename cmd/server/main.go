package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "debatesite",
	Short: "Matchmaking and timed debate session server",
	Long: `debatesite pairs waiting users by rating and runs timed, turn-based
debates between them over websocket connections.`,
	SilenceUsage: true,
	// Running without a subcommand serves.
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, seedCmd, judgeCmd, tailCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
