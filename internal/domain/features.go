package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrOutOfRange reports a measurement outside the reference table's bounds.
var ErrOutOfRange = errors.New("value out of range")

// Category names a group of derived fields.
type Category string

const (
	CategoryTemporal   Category = "temporal"
	CategoryThermal    Category = "thermal"
	CategoryRegional   Category = "regional"
	CategoryAirQuality Category = "air_quality"
	CategoryUV         Category = "uv"
	CategoryComposite  Category = "composite"
)

// CategoryError is a failure confined to one category of one record.
type CategoryError struct {
	Category Category
	Key      Key
	Err      error
}

func (e CategoryError) Error() string {
	return fmt.Sprintf("%s features for %s: %v", e.Category, e.Key, e.Err)
}

func (e CategoryError) Unwrap() error { return e.Err }

// TemporalFeatures are derived from the observation timestamp alone.
type TemporalFeatures struct {
	Hour          int
	DayOfWeek     int
	Month         int
	IsRushHour    bool
	IsMorningRush bool
	IsEveningRush bool
	IsWeekday     bool
	IsWeekend     bool
	Season        string
}

// ThermalFeatures are derived from the thermal slot. All fields are nil when
// the slot or its temperature is absent.
type ThermalFeatures struct {
	Category      *string
	Comfort       *float64
	Extreme       *bool
	HeatingNeeded *bool
	CoolingNeeded *bool

	// Score is the thermal comfort contribution in [0,100].
	Score *float64
}

// RegionalFeatures are looked up from the station table.
type RegionalFeatures struct {
	IsMetroArea *bool
	IsCoastal   *bool
	Region      *string
}

// AirQualityFeatures are derived from the particulate slot. All fields are
// nil when the slot or its concentration is absent.
type AirQualityFeatures struct {
	Grade             *string
	MaskNeeded        *bool
	OutdoorActivityOK *bool

	// Score is the air quality comfort contribution in [0,100].
	Score *float64
}

// UVFeatures are derived from the UV slot. Missing UV data yields false
// flags, not nulls.
type UVFeatures struct {
	HasUV               bool
	SunProtectionNeeded bool

	// Score is the UV comfort contribution in [0,100], nil without UVB.
	Score *float64
}

// DeriveTemporal computes hour, weekday, rush hour and season fields.
func DeriveTemporal(rec AlignedRecord, ref *Reference) (TemporalFeatures, error) {
	if rec.Timestamp.IsZero() {
		return TemporalFeatures{}, errors.New("missing timestamp")
	}
	t := rec.Timestamp.UTC()

	// Monday=0 through Sunday=6.
	dow := (int(t.Weekday()) + 6) % 7
	morning := slices.Contains(ref.MorningRush, t.Hour())
	evening := slices.Contains(ref.EveningRush, t.Hour())

	season, ok := ref.Seasons[t.Month()]
	if !ok {
		return TemporalFeatures{}, fmt.Errorf("no season configured for %s", t.Month())
	}

	return TemporalFeatures{
		Hour:          t.Hour(),
		DayOfWeek:     dow,
		Month:         int(t.Month()),
		IsRushHour:    morning || evening,
		IsMorningRush: morning,
		IsEveningRush: evening,
		IsWeekday:     dow < 5,
		IsWeekend:     dow >= 5,
		Season:        season,
	}, nil
}

// DeriveThermal buckets the temperature and computes the heating, cooling and
// comfort fields.
func DeriveThermal(rec AlignedRecord, ref *Reference) (ThermalFeatures, error) {
	temp := rec.Thermal.Value(FieldTemperature)
	if temp == nil {
		return ThermalFeatures{}, nil
	}
	t := *temp
	th := ref.Thermal
	if t < th.Min || t > th.Max {
		return ThermalFeatures{}, fmt.Errorf("%w: temperature %g outside [%g, %g]", ErrOutOfRange, t, th.Min, th.Max)
	}

	label, ok := bandLabel(th.Categories, t)
	if !ok {
		return ThermalFeatures{}, fmt.Errorf("%w: no temperature category covers %g", ErrOutOfRange, t)
	}

	comfort := th.ComfortTarget - abs(t-th.ComfortTarget)
	extreme := t < th.ExtremeBelow || t > th.ExtremeAbove
	heating := t < th.HeatingBelow
	cooling := t > th.CoolingAbove
	score := rangeScore(th.Scores, th.DefaultScore, t)

	return ThermalFeatures{
		Category:      &label,
		Comfort:       &comfort,
		Extreme:       &extreme,
		HeatingNeeded: &heating,
		CoolingNeeded: &cooling,
		Score:         &score,
	}, nil
}

// DeriveRegional looks the station up in the reference table. Stations not
// in the table get the unknown region and false flags.
func DeriveRegional(rec AlignedRecord, ref *Reference) (RegionalFeatures, error) {
	id := strings.TrimSpace(rec.StationID)
	if id == "" {
		return RegionalFeatures{}, ErrNoStation
	}

	st, ok := ref.Stations[id]
	if !ok {
		st = Station{Region: ref.UnknownLabel}
	}
	region := st.Region
	if region == "" {
		region = ref.UnknownLabel
	}
	metro, coastal := st.Metro, st.Coastal

	return RegionalFeatures{
		IsMetroArea: &metro,
		IsCoastal:   &coastal,
		Region:      &region,
	}, nil
}

// DeriveAirQuality grades the PM10 concentration.
func DeriveAirQuality(rec AlignedRecord, ref *Reference) (AirQualityFeatures, error) {
	pm10 := rec.Particulate.Value(FieldPM10)
	if pm10 == nil {
		return AirQualityFeatures{}, nil
	}
	v := *pm10
	aq := ref.AirQuality
	if v < 0 || v > aq.Max {
		return AirQualityFeatures{}, fmt.Errorf("%w: pm10 %g outside [0, %g]", ErrOutOfRange, v, aq.Max)
	}

	grade, ok := bandLabel(aq.Grades, v)
	if !ok {
		return AirQualityFeatures{}, fmt.Errorf("%w: no pm10 grade covers %g", ErrOutOfRange, v)
	}
	mask := v > aq.MaskAbove
	outdoor := v <= aq.OutdoorMax
	score := bandScore(aq.Scores, aq.DefaultScore, v)

	return AirQualityFeatures{
		Grade:             &grade,
		MaskNeeded:        &mask,
		OutdoorActivityOK: &outdoor,
		Score:             &score,
	}, nil
}

// DeriveUV flags UV presence and sun protection from the UVB sub-index.
func DeriveUV(rec AlignedRecord, ref *Reference) (UVFeatures, error) {
	uvb := rec.UV.Value(FieldUVB)
	if uvb == nil {
		return UVFeatures{}, nil
	}
	v := *uvb
	if v < 0 {
		return UVFeatures{}, fmt.Errorf("%w: uvb %g is negative", ErrOutOfRange, v)
	}
	score := bandScore(ref.UV.Scores, ref.UV.DefaultScore, v)

	return UVFeatures{
		HasUV:               v > 0,
		SunProtectionNeeded: v > ref.UV.ProtectionAbove,
		Score:               &score,
	}, nil
}

// Derive computes every category for rec. A failing category contributes
// nulls for its own fields and a CategoryError; the others are unaffected.
func Derive(rec AlignedRecord, ref *Reference) (FeatureRecord, []CategoryError) {
	var errs []CategoryError
	key := Key{StationID: rec.StationID, Timestamp: rec.Timestamp}
	fail := func(c Category, err error) {
		errs = append(errs, CategoryError{Category: c, Key: key, Err: err})
	}

	out := FeatureRecord{
		StationID:   rec.StationID,
		Timestamp:   rec.Timestamp.UTC(),
		Temperature: copyFloat(rec.Thermal.Value(FieldTemperature)),
		PM10:        copyFloat(rec.Particulate.Value(FieldPM10)),
		UVB:         copyFloat(rec.UV.Value(FieldUVB)),
		UVA:         copyFloat(rec.UV.Value(FieldUVA)),
		EUV:         copyFloat(rec.UV.Value(FieldEUV)),
	}

	temporal, err := DeriveTemporal(rec, ref)
	if err != nil {
		fail(CategoryTemporal, err)
		temporal = TemporalFeatures{}
	} else {
		out.Hour = &temporal.Hour
		out.DayOfWeek = &temporal.DayOfWeek
		out.Month = &temporal.Month
		out.IsRushHour = &temporal.IsRushHour
		out.IsMorningRush = &temporal.IsMorningRush
		out.IsEveningRush = &temporal.IsEveningRush
		out.IsWeekday = &temporal.IsWeekday
		out.IsWeekend = &temporal.IsWeekend
		out.Season = &temporal.Season
	}

	thermal, err := DeriveThermal(rec, ref)
	if err != nil {
		fail(CategoryThermal, err)
		thermal = ThermalFeatures{}
	}
	out.TempCategory = thermal.Category
	out.TempComfort = thermal.Comfort
	out.TempExtreme = thermal.Extreme
	out.HeatingNeeded = thermal.HeatingNeeded
	out.CoolingNeeded = thermal.CoolingNeeded

	regional, err := DeriveRegional(rec, ref)
	if err != nil {
		fail(CategoryRegional, err)
		regional = RegionalFeatures{}
	}
	out.IsMetroArea = regional.IsMetroArea
	out.IsCoastal = regional.IsCoastal
	out.Region = regional.Region

	air, err := DeriveAirQuality(rec, ref)
	if err != nil {
		fail(CategoryAirQuality, err)
		air = AirQualityFeatures{}
	}
	out.PM10Grade = air.Grade
	out.MaskNeeded = air.MaskNeeded
	out.OutdoorActivityOK = air.OutdoorActivityOK

	uv, err := DeriveUV(rec, ref)
	if err != nil {
		fail(CategoryUV, err)
		uv = UVFeatures{}
	}
	out.HasUV = uv.HasUV
	out.SunProtectionNeeded = uv.SunProtectionNeeded

	out.ComfortScore = ComfortScore(ComfortInputs{
		Thermal:    thermal.Score,
		AirQuality: air.Score,
		UV:         uv.Score,
		RushHour:   temporal.IsRushHour,
		Weekend:    temporal.IsWeekend,
		Extreme:    thermal.Extreme,
	}, ref.Weights, ref.Adjustments)

	return out, errs
}

// bandLabel returns the label of the first band whose upper bound covers v.
func bandLabel(bands []Band, v float64) (string, bool) {
	for _, b := range bands {
		if v <= b.Upper {
			return b.Label, true
		}
	}
	return "", false
}

func bandScore(bands []ScoreBand, fallback, v float64) float64 {
	for _, b := range bands {
		if v <= b.Upper {
			return b.Score
		}
	}
	return fallback
}

func rangeScore(ranges []RangeScore, fallback, v float64) float64 {
	for _, r := range ranges {
		if v >= r.Min && v <= r.Max {
			return r.Score
		}
	}
	return fallback
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
