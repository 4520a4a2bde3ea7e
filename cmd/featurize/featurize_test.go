package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-feature-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

var testTick = time.Date(2025, time.September, 24, 12, 0, 0, 0, time.UTC)

func encodedBlobs(t *testing.T, stations []string, seed uint64) map[domain.SourceType]domain.RawBlob {
	t.Helper()
	fixtures := generateFixtures(testTick, stations, seed)
	blobs := make(map[domain.SourceType]domain.RawBlob, len(fixtures))
	for source, recs := range fixtures {
		text, err := domain.EncodeBlob(recs)
		require.NoError(t, err)
		blobs[source] = domain.RawBlob{Source: source, Text: text}
	}
	return blobs
}

func TestGenerateFixtures_Deterministic(t *testing.T) {
	stations := []string{"100", "108", "159"}
	a := encodedBlobs(t, stations, 7)
	b := encodedBlobs(t, stations, 7)
	assert.Equal(t, a, b)

	c := encodedBlobs(t, stations, 8)
	assert.NotEqual(t, a, c)
}

func TestGenerateFixtures_DecodeBack(t *testing.T) {
	stations := []string{"100", "108", "131", "159", "201"}
	records, report := domain.BuildFeatures(encodedBlobs(t, stations, 3), domain.DefaultReference())

	require.Len(t, records, len(stations))
	for _, source := range domain.SourceTypes {
		assert.Equal(t, len(stations), report.Sources[source].Records, source)
		assert.Zero(t, report.Sources[source].Skipped, source)
	}
	for _, rec := range records {
		assert.True(t, rec.Timestamp.Equal(testTick))
	}
}

func TestReadBlobs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thermal.txt")
	require.NoError(t, os.WriteFile(path, []byte("202509241200 100 18.5 C\n"), 0o644))

	blobs, err := readBlobs(map[domain.SourceType]string{
		domain.SourceThermal:     path,
		domain.SourceParticulate: "",
	})
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, domain.SourceThermal, blobs[domain.SourceThermal].Source)

	_, err = readBlobs(map[domain.SourceType]string{domain.SourceThermal: ""})
	assert.ErrorContains(t, err, "no feed files")

	_, err = readBlobs(map[domain.SourceType]string{domain.SourceUV: filepath.Join(dir, "missing.txt")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func encodeFeatures(t *testing.T, records []domain.FeatureRecord) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, writeFeatures(&buf, records))
	return buf.Bytes()
}

func failedPhases(phases []*phase) map[string]int {
	out := make(map[string]int)
	for _, p := range phases {
		if !p.passed() {
			out[p.name] = len(p.errors)
		}
	}
	return out
}

func TestValidateFeatures_Valid(t *testing.T) {
	records, _ := domain.BuildFeatures(encodedBlobs(t, []string{"100", "108", "131"}, 11), domain.DefaultReference())

	phases, n, err := validateFeatures(encodeFeatures(t, records))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, failedPhases(phases))
}

func TestValidateFeatures_Violations(t *testing.T) {
	records, _ := domain.BuildFeatures(map[domain.SourceType]domain.RawBlob{
		domain.SourceThermal: {Text: "202509241200 100 18.5 C\n202509241200 108 31.0 C\n"},
	}, domain.DefaultReference())
	require.Len(t, records, 2)

	bad := 150.0
	records[0].ComfortScore = &bad
	records[0].TempCategory = nil
	records[1].SunProtectionNeeded = true
	records = append(records, records[1])

	phases, n, err := validateFeatures(encodeFeatures(t, records))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, map[string]int{
		"comfort score range":     1,
		"unique station and time": 1,
		"category consistency":    3,
	}, failedPhases(phases))
}

func TestValidateFeatures_Temporal(t *testing.T) {
	records, _ := domain.BuildFeatures(map[domain.SourceType]domain.RawBlob{
		domain.SourceThermal: {Text: "202509241200 100 18.5 C\n202509241200 108 21.0 C\n202509241200 131 22.0 C\n"},
	}, domain.DefaultReference())
	require.Len(t, records, 3)

	// Fully null temporal fields are a failed category, not a violation.
	nullTemporal := &records[0]
	nullTemporal.Hour, nullTemporal.DayOfWeek, nullTemporal.Month = nil, nil, nil
	nullTemporal.IsRushHour, nullTemporal.IsMorningRush, nullTemporal.IsEveningRush = nil, nil, nil
	nullTemporal.IsWeekday, nullTemporal.IsWeekend, nullTemporal.Season = nil, nil, nil

	records[1].Season = nil

	weekend := true
	records[2].IsWeekend = &weekend

	phases, _, err := validateFeatures(encodeFeatures(t, records))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"category consistency": 2}, failedPhases(phases))
}

func TestValidateFeatures_FieldCount(t *testing.T) {
	records, _ := domain.BuildFeatures(map[domain.SourceType]domain.RawBlob{
		domain.SourceThermal: {Text: "202509241200 100 18.5 C\n"},
	}, domain.DefaultReference())

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(encodeFeatures(t, records), &raw))
	delete(raw[0], "season")
	raw[0]["extra"] = 1
	raw[0]["another"] = 2
	data, err := json.Marshal(raw)
	require.NoError(t, err)

	phases, _, err := validateFeatures(data)
	require.NoError(t, err)
	assert.Equal(t, 1, failedPhases(phases)["field count"])
}

func TestValidateFeatures_NotJSON(t *testing.T) {
	_, _, err := validateFeatures([]byte("not json"))
	assert.ErrorContains(t, err, "decode features")
}

func TestPrintPhases(t *testing.T) {
	ok := &phase{name: "ok"}
	bad := &phase{name: "bad"}
	bad.errorf("record %d broken", 2)

	var buf bytes.Buffer
	failed := printPhases(&buf, []*phase{ok, bad}, 5)
	assert.Equal(t, 1, failed)
	assert.Contains(t, buf.String(), "Records: 5")
	assert.Contains(t, buf.String(), "FAIL (1)")
	assert.Contains(t, buf.String(), "[1] record 2 broken")
}

func TestPrintReport(t *testing.T) {
	records, report := domain.BuildFeatures(map[domain.SourceType]domain.RawBlob{
		domain.SourceThermal: {Text: "202509241200 100 18.5 C\ngarbage\n"},
	}, domain.DefaultReference())

	var buf bytes.Buffer
	printReport(&buf, len(records), report)
	out := buf.String()
	assert.Contains(t, out, "records: 1 produced")
	assert.Contains(t, out, "skipped=1")
	assert.Contains(t, out, "line 2:")
	assert.Contains(t, out, "uv           not supplied")
}

func TestPrintInventory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printInventory(&buf, sqlite.Inventory{
		RawBlobs:      3,
		RawBySource:   map[domain.SourceType]int{domain.SourceThermal: 2, domain.SourceUV: 1},
		Features:      4,
		Runs:          1,
		FirstObserved: testTick,
		LastObserved:  testTick.Add(time.Hour),
	}))
	out := buf.String()
	assert.Regexp(t, `features\s+4\n`, out)
	assert.Contains(t, out, "2025-09-24T12:00:00 .. 2025-09-24T13:00:00")

	buf.Reset()
	require.NoError(t, printInventory(&buf, sqlite.Inventory{}))
	assert.Contains(t, buf.String(), "none")
}

// TestCommands_EncodeDecodeValidate drives the CLI the way a user would.
func TestCommands_EncodeDecodeValidate(t *testing.T) {
	dir := t.TempDir()
	featuresPath := filepath.Join(dir, "features.json")

	run := func(args ...string) string {
		t.Helper()
		var out, errOut bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetErr(&errOut)
		rootCmd.SetArgs(args)
		require.NoError(t, rootCmd.Execute(), errOut.String())
		return out.String()
	}

	out := run("encode", "--tick", "2025-09-24T12:00:00", "--stations", "100,108", "--seed", "5", "--out-dir", dir)
	assert.Contains(t, out, "thermal: 2 lines")

	run("decode",
		"--thermal", filepath.Join(dir, fixtureFiles[domain.SourceThermal]),
		"--pm10", filepath.Join(dir, fixtureFiles[domain.SourceParticulate]),
		"--uv", filepath.Join(dir, fixtureFiles[domain.SourceUV]),
		"--out", featuresPath)

	data, err := os.ReadFile(featuresPath)
	require.NoError(t, err)
	var records []domain.FeatureRecord
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 2)

	out = run("validate", featuresPath)
	assert.Contains(t, out, "Records: 2")
	assert.NotContains(t, out, "FAIL")
}
