package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	ErrMalformedLine    = errors.New("malformed line")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrInvalidValue     = errors.New("invalid value")
	ErrUnknownUnit      = errors.New("unknown unit marker")
	ErrNoStation        = errors.New("missing station id")
)

const (
	unitCelsius     = "C"
	unitMicrogramM3 = "ug/m3"
	unitWattM2      = "W/m2"

	// uvColumns is the number of sub-index columns on a complete UV line.
	uvColumns = 3

	// maxLineBytes bounds a single data line. Longer lines are skipped.
	maxLineBytes = 1 << 20
	// failureTextBytes is how much of an oversized line a LineError keeps.
	failureTextBytes = 64
)

// LineDecoder turns one data line of a feed into a ParsedRecord.
type LineDecoder interface {
	Source() SourceType
	DecodeLine(line string) (ParsedRecord, error)
}

// partialDetector is implemented by decoders whose lines may be partially
// populated.
type partialDetector interface {
	IsPartial(line string) bool
}

// LineError records why a single line was skipped.
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e LineError) Unwrap() error { return e.Err }

// DecodeResult is the outcome of decoding one blob.
type DecodeResult struct {
	Source   SourceType
	Records  []ParsedRecord
	Lines    int // data lines seen, excluding comments and blanks
	Skipped  int
	Partial  int // UV lines with fewer sub-index columns than expected
	Failures []LineError
}

var lineDecoders = map[SourceType]LineDecoder{
	SourceThermal:     ThermalDecoder{},
	SourceParticulate: ParticulateDecoder{},
	SourceUV:          UVDecoder{},
}

// DecoderFor returns the line decoder registered for source.
func DecoderFor(source SourceType) (LineDecoder, bool) {
	d, ok := lineDecoders[source]
	return d, ok
}

// Decode splits a blob into lines and decodes each with the blob's decoder.
// Comment lines ("#") and blank lines are ignored. A bad line is skipped and
// counted; decoding never fails for the whole blob.
func Decode(blob RawBlob) DecodeResult {
	result := DecodeResult{Source: blob.Source}

	dec, ok := DecoderFor(blob.Source)
	if !ok {
		return result
	}

	lineNo := 0
	for raw := range strings.Lines(blob.Text) {
		lineNo++
		if len(raw) > maxLineBytes {
			result.Lines++
			result.Skipped++
			result.Failures = append(result.Failures, LineError{
				Line: lineNo,
				Text: raw[:failureTextBytes],
				Err:  fmt.Errorf("%w: line longer than %d bytes", ErrMalformedLine, maxLineBytes),
			})
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		result.Lines++

		rec, err := dec.DecodeLine(line)
		if err != nil {
			result.Skipped++
			result.Failures = append(result.Failures, LineError{Line: lineNo, Text: line, Err: err})
			continue
		}
		if pd, ok := dec.(partialDetector); ok && pd.IsPartial(line) {
			result.Partial++
		}
		result.Records = append(result.Records, rec)
	}

	return result
}

// ThermalDecoder decodes "<timestamp> <station> <temperature> <unit>" lines.
// The unit marker may also be glued to the value ("18.5C") or omitted, in
// which case Celsius is assumed.
type ThermalDecoder struct{}

func (ThermalDecoder) Source() SourceType { return SourceThermal }

func (ThermalDecoder) DecodeLine(line string) (ParsedRecord, error) {
	tokens := strings.Fields(line)

	var rawValue, rawUnit string
	switch len(tokens) {
	case 4:
		rawValue, rawUnit = tokens[2], tokens[3]
	case 3:
		rawValue, rawUnit = splitUnitSuffix(tokens[2])
	default:
		return ParsedRecord{}, fmt.Errorf("%w: thermal line has %d tokens, want 3 or 4", ErrMalformedLine, len(tokens))
	}

	ts, station, err := parseKey(tokens[0], tokens[1])
	if err != nil {
		return ParsedRecord{}, err
	}

	unit, err := normalizeTempUnit(rawUnit)
	if err != nil {
		return ParsedRecord{}, err
	}

	temp, err := parseMeasurement(rawValue)
	if err != nil {
		return ParsedRecord{}, fmt.Errorf("temperature: %w", err)
	}
	if temp != nil && unit == "F" {
		c := (*temp - 32) * 5 / 9
		temp = &c
	}

	return ParsedRecord{
		Source:    SourceThermal,
		StationID: station,
		Timestamp: ts,
		Values:    map[Field]*float64{FieldTemperature: temp},
		Unit:      unitCelsius,
	}, nil
}

// ParticulateDecoder decodes "<timestamp>,<station>,<concentration>" lines.
// Trailing columns are ignored.
type ParticulateDecoder struct{}

func (ParticulateDecoder) Source() SourceType { return SourceParticulate }

func (ParticulateDecoder) DecodeLine(line string) (ParsedRecord, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return ParsedRecord{}, fmt.Errorf("%w: particulate line has %d columns, want at least 3", ErrMalformedLine, len(parts))
	}

	ts, station, err := parseKey(parts[0], parts[1])
	if err != nil {
		return ParsedRecord{}, err
	}

	var pm10 *float64
	if raw := strings.TrimSpace(parts[2]); raw != "" {
		pm10, err = parseMeasurement(raw)
		if err != nil {
			return ParsedRecord{}, fmt.Errorf("pm10: %w", err)
		}
	}

	return ParsedRecord{
		Source:    SourceParticulate,
		StationID: station,
		Timestamp: ts,
		Values:    map[Field]*float64{FieldPM10: pm10},
		Unit:      unitMicrogramM3,
	}, nil
}

// UVDecoder decodes "<timestamp> <station> <uvb> <uva> <euv>" lines. Lines
// with only some sub-index columns are kept with the missing ones absent.
type UVDecoder struct{}

func (UVDecoder) Source() SourceType { return SourceUV }

func (UVDecoder) DecodeLine(line string) (ParsedRecord, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 3 {
		return ParsedRecord{}, fmt.Errorf("%w: uv line has %d tokens, want at least 3", ErrMalformedLine, len(tokens))
	}

	ts, station, err := parseKey(tokens[0], tokens[1])
	if err != nil {
		return ParsedRecord{}, err
	}

	fields := SourceUV.Fields()
	values := make(map[Field]*float64, len(fields))
	for i, f := range fields {
		col := 2 + i
		if col >= len(tokens) {
			values[f] = nil
			continue
		}
		v, err := parseMeasurement(tokens[col])
		if err != nil {
			return ParsedRecord{}, fmt.Errorf("%s: %w", f, err)
		}
		values[f] = v
	}

	return ParsedRecord{
		Source:    SourceUV,
		StationID: station,
		Timestamp: ts,
		Values:    values,
		Unit:      unitWattM2,
	}, nil
}

// IsPartial reports whether a decodable line lacks some sub-index columns.
func (UVDecoder) IsPartial(line string) bool {
	return len(strings.Fields(line)) < 2+uvColumns
}

func parseKey(rawTime, rawStation string) (time.Time, string, error) {
	ts, err := ParseObservationTime(rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	station, err := NormalizeStationID(rawStation)
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, station, nil
}

// ParseObservationTime parses the feed timestamp formats YYYYMMDDHHMM and
// YYMMDDHHMM (20xx), plus the canonical ISO form. All times are UTC.
func ParseObservationTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		switch len(s) {
		case 12:
		case 10:
			s = "20" + s
		default:
			return time.Time{}, fmt.Errorf("%w: %q has %d digits", ErrInvalidTimestamp, s, len(s))
		}
		t, err := time.ParseInLocation("200601021504", s, time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
		}
		return t, nil
	}

	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// NormalizeStationID trims whitespace and zero padding from numeric ids.
func NormalizeStationID(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNoStation
	}
	if isDigits(s) {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
	}
	return s, nil
}

// parseMeasurement parses a finite number. Missing-value sentinels yield nil.
func parseMeasurement(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrInvalidValue, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q is not finite", ErrInvalidValue, s)
	}
	if v == -999 || v == -99 {
		return nil, nil
	}
	return &v, nil
}

// splitUnitSuffix separates "18.5C" into ("18.5", "C").
func splitUnitSuffix(token string) (string, string) {
	value := strings.TrimRightFunc(token, func(r rune) bool {
		return unicode.IsLetter(r) || r == '°'
	})
	return value, token[len(value):]
}

func normalizeTempUnit(raw string) (string, error) {
	u := strings.ToUpper(strings.TrimSpace(raw))
	u = strings.TrimPrefix(u, "°")
	u = strings.TrimPrefix(u, "DEG")
	switch u {
	case "", "C":
		return "C", nil
	case "F":
		return "F", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUnit, raw)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
