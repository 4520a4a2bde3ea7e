package domain

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func alignedAt(station string, ts time.Time) AlignedRecord {
	return AlignedRecord{StationID: station, Timestamp: ts}
}

func withThermal(a AlignedRecord, temp float64) AlignedRecord {
	rec := reading(SourceThermal, a.StationID, a.Timestamp, map[Field]float64{FieldTemperature: temp})
	a.Thermal = &rec
	return a
}

func withPM10(a AlignedRecord, pm10 float64) AlignedRecord {
	rec := reading(SourceParticulate, a.StationID, a.Timestamp, map[Field]float64{FieldPM10: pm10})
	a.Particulate = &rec
	return a
}

func withUVB(a AlignedRecord, uvb float64) AlignedRecord {
	rec := reading(SourceUV, a.StationID, a.Timestamp, map[Field]float64{FieldUVB: uvb})
	a.UV = &rec
	return a
}

func TestDeriveTemporal(t *testing.T) {
	ref := DefaultReference()

	tests := []struct {
		name string
		ts   time.Time
		want TemporalFeatures
	}{
		{
			name: "wednesday noon",
			ts:   testTick,
			want: TemporalFeatures{Hour: 12, DayOfWeek: 2, Month: 9, IsWeekday: true, Season: "autumn"},
		},
		{
			name: "saturday morning rush",
			ts:   time.Date(2025, time.September, 27, 8, 0, 0, 0, time.UTC),
			want: TemporalFeatures{Hour: 8, DayOfWeek: 5, Month: 9, IsRushHour: true, IsMorningRush: true, IsWeekend: true, Season: "autumn"},
		},
		{
			name: "monday evening rush in winter",
			ts:   time.Date(2026, time.January, 5, 19, 0, 0, 0, time.UTC),
			want: TemporalFeatures{Hour: 19, DayOfWeek: 0, Month: 1, IsRushHour: true, IsEveningRush: true, IsWeekday: true, Season: "winter"},
		},
		{
			name: "sunday midnight in summer",
			ts:   time.Date(2025, time.July, 6, 0, 0, 0, 0, time.UTC),
			want: TemporalFeatures{Hour: 0, DayOfWeek: 6, Month: 7, IsWeekend: true, Season: "summer"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveTemporal(alignedAt("100", tt.ts), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, got.IsWeekday, got.IsWeekend)
		})
	}

	t.Run("zero timestamp", func(t *testing.T) {
		_, err := DeriveTemporal(alignedAt("100", time.Time{}), ref)
		assert.Error(t, err)
	})
}

func TestDeriveThermal(t *testing.T) {
	ref := DefaultReference()

	tests := []struct {
		temp     float64
		category string
		comfort  float64
		extreme  bool
		heating  bool
		cooling  bool
		score    float64
	}{
		{-12, "very_cold", -12, true, true, false, ref.Thermal.DefaultScore},
		{0, "very_cold", 0, false, true, false, 20},
		{7, "cold", 7, false, true, false, 50},
		{18.5, "mild", 18.5, false, false, false, 90},
		{20, "mild", 20, false, false, false, 90},
		{27, "warm", 13, false, false, true, 50},
		{33, "hot", 7, true, false, true, 20},
	}
	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, err := DeriveThermal(withThermal(alignedAt("100", testTick), tt.temp), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.category, *got.Category)
			assert.InDelta(t, tt.comfort, *got.Comfort, 1e-9)
			assert.Equal(t, tt.extreme, *got.Extreme)
			assert.Equal(t, tt.heating, *got.HeatingNeeded)
			assert.Equal(t, tt.cooling, *got.CoolingNeeded)
			assert.InDelta(t, tt.score, *got.Score, 1e-9)
		})
	}

	t.Run("absent slot nulls every field", func(t *testing.T) {
		got, err := DeriveThermal(alignedAt("100", testTick), ref)
		require.NoError(t, err)
		assert.Equal(t, ThermalFeatures{}, got)
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := DeriveThermal(withThermal(alignedAt("100", testTick), 75), ref)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestDeriveRegional(t *testing.T) {
	ref := DefaultReference()

	tests := []struct {
		station string
		metro   bool
		coastal bool
		region  string
	}{
		{"108", true, false, "central"},
		{"102", true, true, "central"},
		{"159", false, true, "central"},
		{"4242", false, false, ref.UnknownLabel},
	}
	for _, tt := range tests {
		t.Run(tt.station, func(t *testing.T) {
			got, err := DeriveRegional(alignedAt(tt.station, testTick), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.metro, *got.IsMetroArea)
			assert.Equal(t, tt.coastal, *got.IsCoastal)
			assert.Equal(t, tt.region, *got.Region)
		})
	}

	t.Run("missing station", func(t *testing.T) {
		_, err := DeriveRegional(alignedAt(" ", testTick), ref)
		assert.ErrorIs(t, err, ErrNoStation)
	})
}

func TestDeriveAirQuality(t *testing.T) {
	ref := DefaultReference()

	tests := []struct {
		pm10    float64
		grade   string
		mask    bool
		outdoor bool
		score   float64
	}{
		{0, "good", false, true, 90},
		{30, "good", false, true, 70},
		{35, "moderate", false, true, 70},
		{60, "moderate", true, true, 50},
		{120, "unhealthy", true, false, 30},
		{400, "very_unhealthy", true, false, ref.AirQuality.DefaultScore},
	}
	for _, tt := range tests {
		t.Run(tt.grade, func(t *testing.T) {
			got, err := DeriveAirQuality(withPM10(alignedAt("100", testTick), tt.pm10), ref)
			require.NoError(t, err)
			assert.Equal(t, tt.grade, *got.Grade)
			assert.Equal(t, tt.mask, *got.MaskNeeded)
			assert.Equal(t, tt.outdoor, *got.OutdoorActivityOK)
			assert.InDelta(t, tt.score, *got.Score, 1e-9)
		})
	}

	for _, bad := range []float64{-5, 1200} {
		_, err := DeriveAirQuality(withPM10(alignedAt("100", testTick), bad), ref)
		assert.ErrorIs(t, err, ErrOutOfRange, "pm10 %g", bad)
	}

	got, err := DeriveAirQuality(alignedAt("100", testTick), ref)
	require.NoError(t, err)
	assert.Equal(t, AirQualityFeatures{}, got)
}

func TestDeriveUV(t *testing.T) {
	ref := DefaultReference()

	t.Run("absent uv is false not null", func(t *testing.T) {
		got, err := DeriveUV(alignedAt("100", testTick), ref)
		require.NoError(t, err)
		assert.False(t, got.HasUV)
		assert.False(t, got.SunProtectionNeeded)
		assert.Nil(t, got.Score)
	})

	t.Run("night reading", func(t *testing.T) {
		got, err := DeriveUV(withUVB(alignedAt("100", testTick), 0), ref)
		require.NoError(t, err)
		assert.False(t, got.HasUV)
		assert.False(t, got.SunProtectionNeeded)
		assert.InDelta(t, 90.0, *got.Score, 1e-9)
	})

	t.Run("strong sun", func(t *testing.T) {
		got, err := DeriveUV(withUVB(alignedAt("100", testTick), 0.03), ref)
		require.NoError(t, err)
		assert.True(t, got.HasUV)
		assert.True(t, got.SunProtectionNeeded)
		assert.InDelta(t, 70.0, *got.Score, 1e-9)
	})

	t.Run("negative", func(t *testing.T) {
		_, err := DeriveUV(withUVB(alignedAt("100", testTick), -0.5), ref)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})
}

func TestDerive_ThermalAndParticulate(t *testing.T) {
	ref := DefaultReference()
	rec := withPM10(withThermal(alignedAt("100", testTick), 18.5), 35)

	got, errs := Derive(rec, ref)
	require.Empty(t, errs)

	assert.Equal(t, "100", got.StationID)
	assert.InDelta(t, 18.5, *got.Temperature, 1e-9)
	assert.InDelta(t, 35.0, *got.PM10, 1e-9)
	assert.Nil(t, got.UVB)
	assert.Equal(t, 12, *got.Hour)
	assert.False(t, *got.IsRushHour)
	assert.Equal(t, "autumn", *got.Season)
	assert.Equal(t, "mild", *got.TempCategory)
	assert.Equal(t, "moderate", *got.PM10Grade)
	assert.False(t, got.HasUV)

	// Thermal 90 and air quality 70, weighted over the two present categories.
	want := (ref.Weights.Thermal*90 + ref.Weights.AirQuality*70) / (ref.Weights.Thermal + ref.Weights.AirQuality)
	require.NotNil(t, got.ComfortScore)
	assert.InDelta(t, want, *got.ComfortScore, 1e-9)
}

func TestDerive_CategoriesFailIndependently(t *testing.T) {
	ref := DefaultReference()
	rec := withPM10(withThermal(alignedAt("108", testTick), 18.5), -5)

	got, errs := Derive(rec, ref)
	require.Len(t, errs, 1)
	assert.Equal(t, CategoryAirQuality, errs[0].Category)
	assert.ErrorIs(t, errs[0], ErrOutOfRange)

	assert.Nil(t, got.PM10Grade)
	assert.Nil(t, got.MaskNeeded)
	assert.Nil(t, got.OutdoorActivityOK)
	assert.Equal(t, "mild", *got.TempCategory)
	assert.True(t, *got.IsMetroArea)
	assert.InDelta(t, 90.0, *got.ComfortScore, 1e-9)
}

func TestDerive_TemporalFailureNullsTemporalFields(t *testing.T) {
	ref := DefaultReference()
	delete(ref.Seasons, time.September)
	rec := withThermal(alignedAt("100", testTick), 18.5)

	got, errs := Derive(rec, ref)
	require.Len(t, errs, 1)
	assert.Equal(t, CategoryTemporal, errs[0].Category)

	assert.Nil(t, got.Hour)
	assert.Nil(t, got.DayOfWeek)
	assert.Nil(t, got.Month)
	assert.Nil(t, got.IsRushHour)
	assert.Nil(t, got.IsMorningRush)
	assert.Nil(t, got.IsEveningRush)
	assert.Nil(t, got.IsWeekday)
	assert.Nil(t, got.IsWeekend)
	assert.Nil(t, got.Season)

	// Other categories are unaffected.
	assert.Equal(t, "mild", *got.TempCategory)
	assert.Equal(t, "central", *got.Region)
	require.NotNil(t, got.ComfortScore)
	assert.InDelta(t, 90.0, *got.ComfortScore, 1e-9)

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Len(t, fields, FeatureFieldCount)
	assert.Nil(t, fields["hour"])
	assert.Nil(t, fields["season"])
	assert.Nil(t, fields["is_weekday"])
}

func TestDerive_NoMeasurementsNullsComfort(t *testing.T) {
	got, errs := Derive(alignedAt("100", testTick), DefaultReference())
	assert.Empty(t, errs)
	assert.Nil(t, got.ComfortScore)
	assert.Nil(t, got.TempCategory)
	assert.Equal(t, "central", *got.Region)
}

func TestFeatureRecord_FieldCount(t *testing.T) {
	assert.Equal(t, FeatureFieldCount, reflect.TypeOf(FeatureRecord{}).NumField())

	got, _ := Derive(alignedAt("100", testTick), DefaultReference())
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Len(t, fields, FeatureFieldCount)
	assert.Contains(t, fields, "comfort_score")
	assert.Nil(t, fields["temp_category"])
	assert.Equal(t, false, fields["has_uv"])
}

func TestDerive_Deterministic(t *testing.T) {
	ref := DefaultReference()
	rec := withUVB(withPM10(withThermal(alignedAt("131", testTick), 24), 90), 0.15)

	a, _ := Derive(rec, ref)
	b, _ := Derive(rec, ref)
	assert.Equal(t, a, b)
}

func TestReference_Validate(t *testing.T) {
	require.NoError(t, DefaultReference().Validate())

	tests := []struct {
		name   string
		mutate func(*Reference)
	}{
		{"weights do not sum to one", func(r *Reference) { r.Weights.UV = 0.5 }},
		{"negative weight", func(r *Reference) { r.Weights = Weights{Thermal: 1.2, AirQuality: -0.2} }},
		{"rush hour out of range", func(r *Reference) { r.MorningRush = []int{24} }},
		{"missing season", func(r *Reference) { delete(r.Seasons, time.March) }},
		{"descending bands", func(r *Reference) { r.AirQuality.Grades[1].Upper = 10 }},
		{"score above 100", func(r *Reference) { r.UV.Scores[0].Score = 120 }},
		{"inverted thermal range", func(r *Reference) { r.Thermal.Min = 70 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := DefaultReference()
			tt.mutate(ref)
			assert.Error(t, ref.Validate())
		})
	}
}
