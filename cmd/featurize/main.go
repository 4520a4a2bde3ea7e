// Command featurize runs the feature builder offline. It decodes saved KMA
// feed files into feature records, generates fixture feeds, checks feature
// output and summarizes a local archive.
//
// Usage:
//
//	go run ./cmd/featurize encode --tick 2025-09-24T12:00:00 --out-dir testdata/tick
//	go run ./cmd/featurize decode --thermal testdata/tick/thermal.txt --pm10 testdata/tick/pm10.txt
//	go run ./cmd/featurize validate features.json
//	go run ./cmd/featurize inventory --archive data/features.db
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var referencePath string

var rootCmd = &cobra.Command{
	Use:   "featurize",
	Short: "Offline tools for the weather feature ETL",
	Long: `featurize decodes KMA feed files into comfort feature records,
generates fixture feeds and validates or inspects the resulting output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&referencePath, "reference", "", "reference YAML overlay (built-in tables when empty)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
