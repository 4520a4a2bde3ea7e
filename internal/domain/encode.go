package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// feedTimeLayout is the timestamp layout used by all three feeds.
const feedTimeLayout = "200601021504"

// missingValue is written for absent measurements.
const missingValue = "-999"

// EncodeLine renders a ParsedRecord back into its feed's line grammar.
func EncodeLine(rec ParsedRecord) (string, error) {
	ts := rec.Timestamp.UTC().Format(feedTimeLayout)
	switch rec.Source {
	case SourceThermal:
		return strings.Join([]string{ts, rec.StationID, formatValue(rec.Value(FieldTemperature)), unitCelsius}, " "), nil
	case SourceParticulate:
		return strings.Join([]string{ts, rec.StationID, formatValue(rec.Value(FieldPM10))}, ","), nil
	case SourceUV:
		cols := []string{ts, rec.StationID}
		for _, f := range SourceUV.Fields() {
			cols = append(cols, formatValue(rec.Value(f)))
		}
		return strings.Join(cols, " "), nil
	default:
		return "", fmt.Errorf("encode line: unknown source %q", rec.Source)
	}
}

// EncodeBlob renders records of one source as a feed blob, one line each.
func EncodeBlob(records []ParsedRecord) (string, error) {
	var b strings.Builder
	for i := range records {
		line, err := EncodeLine(records[i])
		if err != nil {
			return "", err
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func formatValue(v *float64) string {
	if v == nil {
		return missingValue
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
