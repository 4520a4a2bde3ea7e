package domain

import (
	"fmt"
	"time"
)

// SourceType identifies one of the raw observation feeds.
type SourceType string

const (
	SourceThermal     SourceType = "thermal"
	SourceParticulate SourceType = "particulate"
	SourceUV          SourceType = "uv"
)

// SourceTypes lists every feed in the order they are decoded.
var SourceTypes = []SourceType{SourceThermal, SourceParticulate, SourceUV}

// Field names a measurement carried by a ParsedRecord.
type Field string

const (
	FieldTemperature Field = "temperature"
	FieldPM10        Field = "pm10"
	FieldUVB         Field = "uv_uvb"
	FieldUVA         Field = "uv_uva"
	FieldEUV         Field = "uv_euv"
)

// Fields returns the measurement fields defined for a source type.
func (s SourceType) Fields() []Field {
	switch s {
	case SourceThermal:
		return []Field{FieldTemperature}
	case SourceParticulate:
		return []Field{FieldPM10}
	case SourceUV:
		return []Field{FieldUVB, FieldUVA, FieldEUV}
	default:
		return nil
	}
}

// Valid reports whether s is one of the known feeds.
func (s SourceType) Valid() bool {
	return len(s.Fields()) > 0
}

// RawBlob is one tick's unparsed response from a single feed.
type RawBlob struct {
	Source      SourceType
	CollectedAt time.Time
	Text        string
}

// ParsedRecord is one station's reading from one feed at one timestamp.
// A nil entry in Values means the field was reported but absent.
type ParsedRecord struct {
	Source    SourceType
	StationID string
	Timestamp time.Time
	Values    map[Field]*float64
	Unit      string
}

// Value returns the measurement for f, or nil when it is absent.
func (r *ParsedRecord) Value(f Field) *float64 {
	if r == nil {
		return nil
	}
	return r.Values[f]
}

// Key returns the join key of the record.
func (r *ParsedRecord) Key() Key {
	return Key{StationID: r.StationID, Timestamp: r.Timestamp}
}

// Key identifies one station at one observation time.
type Key struct {
	StationID string
	Timestamp time.Time
}

func (k Key) String() string {
	return k.StationID + "|" + CanonicalTimestamp(k.Timestamp)
}

// AlignedRecord joins the three feeds for one Key. Any slot may be nil.
type AlignedRecord struct {
	StationID   string
	Timestamp   time.Time
	Thermal     *ParsedRecord
	Particulate *ParsedRecord
	UV          *ParsedRecord
}

// Slot returns the record held for source, or nil.
func (a AlignedRecord) Slot(source SourceType) *ParsedRecord {
	switch source {
	case SourceThermal:
		return a.Thermal
	case SourceParticulate:
		return a.Particulate
	case SourceUV:
		return a.UV
	default:
		return nil
	}
}

// FeatureRecord is the enriched, flat record handed to the writers. It always
// carries exactly 30 fields; pointer fields are null when their category was
// unavailable.
type FeatureRecord struct {
	// Base fields.
	StationID   string    `json:"station_id"`
	Timestamp   time.Time `json:"timestamp"`
	Temperature *float64  `json:"temperature"`
	PM10        *float64  `json:"pm10"`
	UVB         *float64  `json:"uv_uvb"`
	UVA         *float64  `json:"uv_uva"`
	EUV         *float64  `json:"uv_euv"`

	// Temporal.
	Hour          *int    `json:"hour"`
	DayOfWeek     *int    `json:"day_of_week"` // 0=Monday, 6=Sunday
	Month         *int    `json:"month"`
	IsRushHour    *bool   `json:"is_rush_hour"`
	IsMorningRush *bool   `json:"is_morning_rush"`
	IsEveningRush *bool   `json:"is_evening_rush"`
	IsWeekday     *bool   `json:"is_weekday"`
	IsWeekend     *bool   `json:"is_weekend"`
	Season        *string `json:"season"`

	// Thermal.
	TempCategory  *string  `json:"temp_category"`
	TempComfort   *float64 `json:"temp_comfort"`
	TempExtreme   *bool    `json:"temp_extreme"`
	HeatingNeeded *bool    `json:"heating_needed"`
	CoolingNeeded *bool    `json:"cooling_needed"`

	// Regional.
	IsMetroArea *bool   `json:"is_metro_area"`
	IsCoastal   *bool   `json:"is_coastal"`
	Region      *string `json:"region"`

	// Air quality.
	PM10Grade         *string `json:"pm10_grade"`
	MaskNeeded        *bool   `json:"mask_needed"`
	OutdoorActivityOK *bool   `json:"outdoor_activity_ok"`

	// UV. Absence of UV data is reported as false, never null.
	HasUV               bool `json:"has_uv"`
	SunProtectionNeeded bool `json:"sun_protection_needed"`

	ComfortScore *float64 `json:"comfort_score"`
}

// FeatureFieldCount is the number of logical fields in a FeatureRecord.
const FeatureFieldCount = 30

// Key returns the join key of the record.
func (f FeatureRecord) Key() Key {
	return Key{StationID: f.StationID, Timestamp: f.Timestamp}
}

// FeatureBatch is one tick's output, tagged for the writers.
type FeatureBatch struct {
	RunID       string
	Tick        time.Time
	ProcessedAt time.Time
	Records     []FeatureRecord
}

// CanonicalTimestamp formats t as the ISO form used in keys and fixtures.
func CanonicalTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05")
}

// ParseCanonicalTimestamp is the inverse of CanonicalTimestamp.
func ParseCanonicalTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse canonical timestamp %q: %w", s, err)
	}
	return t, nil
}
