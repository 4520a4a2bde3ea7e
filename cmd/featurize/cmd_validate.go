package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE",
	Short: "Check a JSON array of feature records",
	Long: `Check that every record carries exactly the feature fields, that comfort
scores lie in [0, 100], that keys are unique and that each category is either
fully present or fully null.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read features: %w", err)
	}
	phases, n, err := validateFeatures(data)
	if err != nil {
		return err
	}
	if failed := printPhases(cmd.OutOrStdout(), phases, n); failed > 0 {
		return fmt.Errorf("%d of %d checks failed", failed, len(phases))
	}
	return nil
}

// validateFeatures runs every check over the encoded records and returns the
// phases and the record count.
func validateFeatures(data []byte) ([]*phase, int, error) {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode features: %w", err)
	}
	var records []domain.FeatureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, 0, fmt.Errorf("decode features: %w", err)
	}

	fields := &phase{name: "field count"}
	for i, r := range raw {
		if len(r) != domain.FeatureFieldCount {
			fields.errorf("record %d: %d fields, want %d", i, len(r), domain.FeatureFieldCount)
		}
	}

	scores := &phase{name: "comfort score range"}
	keys := &phase{name: "unique station and time"}
	categories := &phase{name: "category consistency"}
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		if s := rec.ComfortScore; s != nil && (*s < 0 || *s > 100) {
			scores.errorf("record %d (%s): comfort score %v", i, rec.Key(), *s)
		}

		k := rec.Key().String()
		if prev, ok := seen[k]; ok {
			keys.errorf("records %d and %d share key %s", prev, i, k)
		}
		seen[k] = i

		checkCategories(categories, i, rec)
	}

	return []*phase{fields, scores, keys, categories}, len(records), nil
}

func checkCategories(p *phase, i int, rec domain.FeatureRecord) {
	thermal := []bool{rec.TempCategory == nil, rec.TempComfort == nil, rec.TempExtreme == nil,
		rec.HeatingNeeded == nil, rec.CoolingNeeded == nil}
	if !allEqual(thermal) {
		p.errorf("record %d (%s): thermal fields partially null", i, rec.Key())
	}
	regional := []bool{rec.IsMetroArea == nil, rec.IsCoastal == nil, rec.Region == nil}
	if !allEqual(regional) {
		p.errorf("record %d (%s): regional fields partially null", i, rec.Key())
	}
	air := []bool{rec.PM10Grade == nil, rec.MaskNeeded == nil, rec.OutdoorActivityOK == nil}
	if !allEqual(air) {
		p.errorf("record %d (%s): air quality fields partially null", i, rec.Key())
	}
	if rec.SunProtectionNeeded && !rec.HasUV {
		p.errorf("record %d (%s): sun protection without UV data", i, rec.Key())
	}
	temporal := []bool{rec.Hour == nil, rec.DayOfWeek == nil, rec.Month == nil, rec.IsRushHour == nil,
		rec.IsMorningRush == nil, rec.IsEveningRush == nil, rec.IsWeekday == nil, rec.IsWeekend == nil,
		rec.Season == nil}
	if !allEqual(temporal) {
		p.errorf("record %d (%s): temporal fields partially null", i, rec.Key())
		return
	}
	if temporal[0] {
		return
	}
	if *rec.IsWeekday == *rec.IsWeekend {
		p.errorf("record %d (%s): weekday and weekend flags agree", i, rec.Key())
	}
	if *rec.IsRushHour != (*rec.IsMorningRush || *rec.IsEveningRush) {
		p.errorf("record %d (%s): rush hour flag disagrees with morning and evening", i, rec.Key())
	}
}

func allEqual(vs []bool) bool {
	for _, v := range vs[1:] {
		if v != vs[0] {
			return false
		}
	}
	return true
}

// printPhases writes the summary and returns the number of failed phases.
func printPhases(w io.Writer, phases []*phase, records int) int {
	fmt.Fprintf(w, "Records: %d\n\n", records)
	failed := 0
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d)", len(p.errors))
			failed++
		}
		fmt.Fprintf(w, "  %-32s %s\n", p.name, status)
	}
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(w, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(w, "  [%d] %s\n", i+1, e)
		}
	}
	return failed
}
