package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigDir string
	flagLogLevel  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "rigsync",
	Short:         "Drive character rigs from tracked skeletons",
	Long:          "rigsync keeps one character representation per tracked body and copies sensor joint positions onto the representation's nodes every frame.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run; prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigDir, "config", ".", "directory containing rigsync.cfg.json")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override logLevel from config (debug|info|warn|error)")

	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tablesCmd)
}
