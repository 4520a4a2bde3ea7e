package domain

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Station describes a station's regional classification.
type Station struct {
	Region  string `yaml:"region"`
	Metro   bool   `yaml:"metro"`
	Coastal bool   `yaml:"coastal"`
}

// Band maps values up to and including Upper onto Label.
type Band struct {
	Upper float64 `yaml:"upper"`
	Label string  `yaml:"label"`
}

// ScoreBand maps values up to and including Upper onto Score.
type ScoreBand struct {
	Upper float64 `yaml:"upper"`
	Score float64 `yaml:"score"`
}

// RangeScore maps values in [Min, Max] onto Score.
type RangeScore struct {
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Score float64 `yaml:"score"`
}

// ThermalThresholds configures the thermal category, in degrees Celsius.
type ThermalThresholds struct {
	Min           float64      `yaml:"min"`
	Max           float64      `yaml:"max"`
	Categories    []Band       `yaml:"categories"`
	ComfortTarget float64      `yaml:"comfort_target"`
	ExtremeBelow  float64      `yaml:"extreme_below"`
	ExtremeAbove  float64      `yaml:"extreme_above"`
	HeatingBelow  float64      `yaml:"heating_below"`
	CoolingAbove  float64      `yaml:"cooling_above"`
	Scores        []RangeScore `yaml:"scores"`
	DefaultScore  float64      `yaml:"default_score"`
}

// AirQualityThresholds configures the PM10 category, in µg/m³.
type AirQualityThresholds struct {
	Max          float64     `yaml:"max"`
	Grades       []Band      `yaml:"grades"`
	MaskAbove    float64     `yaml:"mask_above"`
	OutdoorMax   float64     `yaml:"outdoor_max"`
	Scores       []ScoreBand `yaml:"scores"`
	DefaultScore float64     `yaml:"default_score"`
}

// UVThresholds configures the UV category on the UVB sub-index, in W/m².
type UVThresholds struct {
	ProtectionAbove float64     `yaml:"protection_above"`
	Scores          []ScoreBand `yaml:"scores"`
	DefaultScore    float64     `yaml:"default_score"`
}

// Weights are the comfort score weights per category. They sum to 1.
type Weights struct {
	Thermal    float64 `yaml:"thermal"`
	AirQuality float64 `yaml:"air_quality"`
	UV         float64 `yaml:"uv"`
}

// Adjustments are added to the weighted comfort score before clamping.
type Adjustments struct {
	RushHour float64 `yaml:"rush_hour"`
	Weekend  float64 `yaml:"weekend"`
	Extreme  float64 `yaml:"extreme"`
}

// Reference is the read-only configuration consumed by the feature deriver
// and the comfort calculator.
type Reference struct {
	Stations     map[string]Station    `yaml:"stations"`
	MorningRush  []int                 `yaml:"morning_rush"`
	EveningRush  []int                 `yaml:"evening_rush"`
	Seasons      map[time.Month]string `yaml:"seasons"`
	Thermal      ThermalThresholds     `yaml:"thermal"`
	AirQuality   AirQualityThresholds  `yaml:"air_quality"`
	UV           UVThresholds          `yaml:"uv"`
	Weights      Weights               `yaml:"weights"`
	Adjustments  Adjustments           `yaml:"adjustments"`
	UnknownLabel string                `yaml:"unknown_label"`
}

var (
	metroStations   = []string{"100", "101", "102", "104", "105", "108", "112", "119", "129", "133"}
	coastalStations = []string{"102", "104", "115", "130", "131", "152", "156", "159", "168"}

	// regionByLeadingDigit follows the station numbering blocks.
	regionByLeadingDigit = map[byte]string{
		'1': "central",
		'2': "south",
		'3': "east",
		'9': "west",
	}
)

// DefaultReference returns the built-in station table, thresholds and weights.
func DefaultReference() *Reference {
	ref := &Reference{
		Stations:    defaultStations(),
		MorningRush: []int{7, 8, 9},
		EveningRush: []int{18, 19, 20},
		Seasons: map[time.Month]string{
			time.December: "winter", time.January: "winter", time.February: "winter",
			time.March: "spring", time.April: "spring", time.May: "spring",
			time.June: "summer", time.July: "summer", time.August: "summer",
			time.September: "autumn", time.October: "autumn", time.November: "autumn",
		},
		Thermal: ThermalThresholds{
			Min: -90,
			Max: 60,
			Categories: []Band{
				{Upper: 0, Label: "very_cold"},
				{Upper: 10, Label: "cold"},
				{Upper: 20, Label: "mild"},
				{Upper: 30, Label: "warm"},
				{Upper: 60, Label: "hot"},
			},
			ComfortTarget: 20,
			ExtremeBelow:  0,
			ExtremeAbove:  30,
			HeatingBelow:  10,
			CoolingAbove:  25,
			Scores: []RangeScore{
				{Min: 15, Max: 22, Score: 90},
				{Min: 10, Max: 25, Score: 70},
				{Min: 5, Max: 30, Score: 50},
				{Min: 0, Max: 35, Score: 20},
			},
			DefaultScore: 10,
		},
		AirQuality: AirQualityThresholds{
			Max: 999,
			Grades: []Band{
				{Upper: 30, Label: "good"},
				{Upper: 80, Label: "moderate"},
				{Upper: 150, Label: "unhealthy"},
				{Upper: 999, Label: "very_unhealthy"},
			},
			MaskAbove:  50,
			OutdoorMax: 80,
			Scores: []ScoreBand{
				{Upper: 15, Score: 90},
				{Upper: 35, Score: 70},
				{Upper: 75, Score: 50},
				{Upper: 150, Score: 30},
			},
			DefaultScore: 10,
		},
		UV: UVThresholds{
			ProtectionAbove: 0.02,
			Scores: []ScoreBand{
				{Upper: 0.02, Score: 90},
				{Upper: 0.1, Score: 70},
				{Upper: 0.2, Score: 50},
				{Upper: 0.3, Score: 30},
			},
			DefaultScore: 10,
		},
		Weights: Weights{Thermal: 0.45, AirQuality: 0.20, UV: 0.35},
		Adjustments: Adjustments{
			RushHour: -10,
			Weekend:  5,
			Extreme:  -20,
		},
		UnknownLabel: "unknown",
	}
	return ref
}

func defaultStations() map[string]Station {
	stations := make(map[string]Station)
	add := func(id string, apply func(*Station)) {
		st, ok := stations[id]
		if !ok {
			st.Region = leadingDigitRegion(id)
		}
		apply(&st)
		stations[id] = st
	}
	for _, id := range metroStations {
		add(id, func(s *Station) { s.Metro = true })
	}
	for _, id := range coastalStations {
		add(id, func(s *Station) { s.Coastal = true })
	}
	return stations
}

// DefaultStation returns the built-in entry for id. A station outside the
// built-in table gets the region of its numbering block and no flags.
func DefaultStation(id string) Station {
	if st, ok := defaultStations()[id]; ok {
		return st
	}
	return Station{Region: leadingDigitRegion(id)}
}

func leadingDigitRegion(id string) string {
	if id == "" {
		return "other"
	}
	if region, ok := regionByLeadingDigit[id[0]]; ok {
		return region
	}
	return "other"
}

// weightTolerance absorbs float rounding in configured weights.
const weightTolerance = 1e-9

// Validate checks the reference for internal consistency.
func (r *Reference) Validate() error {
	var errs []error

	for _, h := range append(append([]int{}, r.MorningRush...), r.EveningRush...) {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Errorf("rush hour %d out of range 0-23", h))
		}
	}
	for m := time.January; m <= time.December; m++ {
		if r.Seasons[m] == "" {
			errs = append(errs, fmt.Errorf("no season for %s", m))
		}
	}

	if r.Thermal.Min >= r.Thermal.Max {
		errs = append(errs, errors.New("thermal min must be below max"))
	}
	if err := validateBands("thermal categories", r.Thermal.Categories); err != nil {
		errs = append(errs, err)
	}
	if err := validateBands("pm10 grades", r.AirQuality.Grades); err != nil {
		errs = append(errs, err)
	}
	if err := validateScoreBands("pm10 scores", r.AirQuality.Scores); err != nil {
		errs = append(errs, err)
	}
	if err := validateScoreBands("uv scores", r.UV.Scores); err != nil {
		errs = append(errs, err)
	}
	for _, rs := range r.Thermal.Scores {
		if rs.Min > rs.Max {
			errs = append(errs, fmt.Errorf("thermal score range [%g, %g] is inverted", rs.Min, rs.Max))
		}
		if !validScore(rs.Score) {
			errs = append(errs, fmt.Errorf("thermal score %g outside 0-100", rs.Score))
		}
	}
	for name, s := range map[string]float64{
		"thermal default score":     r.Thermal.DefaultScore,
		"air quality default score": r.AirQuality.DefaultScore,
		"uv default score":          r.UV.DefaultScore,
	} {
		if !validScore(s) {
			errs = append(errs, fmt.Errorf("%s %g outside 0-100", name, s))
		}
	}

	w := r.Weights
	if w.Thermal < 0 || w.AirQuality < 0 || w.UV < 0 {
		errs = append(errs, errors.New("weights must not be negative"))
	}
	if sum := w.Thermal + w.AirQuality + w.UV; math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Errorf("weights sum to %g, want 1", sum))
	}

	return errors.Join(errs...)
}

func validateBands(name string, bands []Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%s: empty", name)
	}
	for i := 1; i < len(bands); i++ {
		if bands[i].Upper <= bands[i-1].Upper {
			return fmt.Errorf("%s: bounds must be ascending", name)
		}
	}
	return nil
}

func validateScoreBands(name string, bands []ScoreBand) error {
	for i, b := range bands {
		if !validScore(b.Score) {
			return fmt.Errorf("%s: score %g outside 0-100", name, b.Score)
		}
		if i > 0 && b.Upper <= bands[i-1].Upper {
			return fmt.Errorf("%s: bounds must be ascending", name)
		}
	}
	return nil
}

func validScore(s float64) bool {
	return s >= 0 && s <= 100
}
