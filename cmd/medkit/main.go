package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	configPath  string
	logLevel    string
	drugsComURL string
	rxNavURL    string
	genAIURL    string
	deadline    time.Duration
}

var rootCmd = &cobra.Command{
	Use:   "medkit",
	Short: "Run the medicine knowledge pipeline locally",
	Long:  "medkit runs the same describe, intent and search-term logic the workers use,\nwithout a Zeebe broker, and prints the result as JSON.\n\nactivities lists the task types the worker manager registers.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", "", "YAML config file (defaults plus environment when empty)")
	f.StringVar(&rootFlags.logLevel, "log-level", "warn", "Log level written to stderr")
	f.StringVar(&rootFlags.drugsComURL, "drugs-com-url", "", "Override the drugs.com base URL")
	f.StringVar(&rootFlags.rxNavURL, "rxnav-url", "", "Override the RxNav base URL")
	f.StringVar(&rootFlags.genAIURL, "genai-url", "", "Override the generative model base URL")
	f.DurationVar(&rootFlags.deadline, "deadline", 0, "Override the aggregation deadline")

	rootCmd.AddCommand(describeCmd)
	rootCmd.AddCommand(intentCmd)
	rootCmd.AddCommand(searchTermsCmd)
	rootCmd.AddCommand(activitiesCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
