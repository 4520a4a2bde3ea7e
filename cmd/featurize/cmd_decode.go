package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
	"github.com/couchcryptid/weather-feature-etl/internal/reference"
)

var decodeFlags struct {
	thermal string
	pm10    string
	uv      string
	out     string
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Build feature records from saved feed files",
	Long: `Decode one tick's feed files, align them by station and time and
derive the feature records. Records are written as a JSON array; the tick
report goes to stderr.`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeFlags.thermal, "thermal", "", "thermal feed file")
	decodeCmd.Flags().StringVar(&decodeFlags.pm10, "pm10", "", "particulate feed file")
	decodeCmd.Flags().StringVar(&decodeFlags.uv, "uv", "", "UV feed file")
	decodeCmd.Flags().StringVarP(&decodeFlags.out, "out", "o", "-", "output file, - for stdout")
}

func runDecode(cmd *cobra.Command, _ []string) error {
	blobs, err := readBlobs(map[domain.SourceType]string{
		domain.SourceThermal:     decodeFlags.thermal,
		domain.SourceParticulate: decodeFlags.pm10,
		domain.SourceUV:          decodeFlags.uv,
	})
	if err != nil {
		return err
	}

	ref, err := reference.Load(referencePath)
	if err != nil {
		return err
	}

	records, report := domain.BuildFeatures(blobs, ref)

	out := cmd.OutOrStdout()
	if decodeFlags.out != "-" {
		f, err := os.Create(decodeFlags.out)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeFeatures(out, records); err != nil {
		return err
	}
	printReport(cmd.ErrOrStderr(), len(records), report)
	return nil
}

// readBlobs loads the feed files that were given. At least one is required.
func readBlobs(paths map[domain.SourceType]string) (map[domain.SourceType]domain.RawBlob, error) {
	blobs := make(map[domain.SourceType]domain.RawBlob, len(paths))
	for source, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s feed: %w", source, err)
		}
		blobs[source] = domain.RawBlob{Source: source, Text: string(data)}
	}
	if len(blobs) == 0 {
		return nil, errors.New("no feed files given: use --thermal, --pm10 or --uv")
	}
	return blobs, nil
}

func writeFeatures(w io.Writer, records []domain.FeatureRecord) error {
	if records == nil {
		records = []domain.FeatureRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	return nil
}

func printReport(w io.Writer, produced int, report domain.TickReport) {
	fmt.Fprintf(w, "records: %d produced, %d aligned, %d without comfort score\n",
		produced, report.Aligned, report.NullComfort)
	for _, source := range domain.SourceTypes {
		s := report.Sources[source]
		if !s.Present {
			fmt.Fprintf(w, "  %-12s not supplied\n", source)
			continue
		}
		fmt.Fprintf(w, "  %-12s lines=%d records=%d skipped=%d partial=%d duplicates=%d\n",
			source, s.Lines, s.Records, s.Skipped, s.Partial, s.Duplicates)
		for _, f := range s.Failures {
			fmt.Fprintf(w, "    line %d: %v\n", f.Line, f.Err)
		}
	}

	failures := report.CategoryFailures()
	categories := make([]string, 0, len(failures))
	for c := range failures {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(w, "  category %s failed for %d records\n", c, failures[domain.Category(c)])
	}
}
