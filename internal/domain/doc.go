// Package domain turns raw weather observation feeds into per-station feature
// records for downstream model training.
//
// # Data Sources
//
// Three KMA API Hub text feeds are collected once per hour by the fetch
// adapter and handed to this package as RawBlobs:
//
//	thermal      kma_sfctm2.php       surface (ASOS) temperature
//	particulate  kma_pm10.php         PM10 concentration
//	uv           kma_sfctm_uv.php     UV sub-indices
//
// Lines starting with "#" are headers or footers and are ignored, as are
// blank lines.
//
// # Line Grammar
//
// Thermal lines are whitespace separated:
//
//	"<timestamp> <station> <temperature> <unit>"  →  "202509241200 100 18.5 C"
//	The unit may be glued to the value ("18.5C") or omitted (Celsius).
//	Accepted markers: C, °C, degC, F, °F. Fahrenheit is converted to Celsius.
//
// Particulate lines are comma separated; trailing columns are ignored:
//
//	"<timestamp>,<station>,<concentration>"  →  "202509241200,100,35"
//
// UV lines are whitespace separated with up to three sub-indices:
//
//	"<timestamp> <station> <uvb> <uva> <euv>"
//	Lines with fewer sub-index columns are partial: the missing sub-indices
//	are recorded as absent and the line is kept.
//
// Timestamps are YYYYMMDDHHMM or YYMMDDHHMM (20xx) and are read as UTC.
// Numeric station ids lose their zero padding ("0100" → "100").
//
// Unknown values:
//
//	-999 and -99 are the feed sentinels for a missing measurement. The record
//	is kept and the value is absent. Non-numeric values make the line invalid.
//
// A line that does not fit its grammar is skipped and counted. Decoding never
// fails for a whole blob.
//
// # Alignment
//
// Records from the three feeds are full-outer-joined on (station, timestamp).
// When a feed repeats a key the later line wins and the earlier one is counted
// as a duplicate.
//
// # Feature Categories
//
//	Temporal (9):     hour, day_of_week, month, rush hour flags, weekday/weekend, season
//	Thermal (5):      temp_category, temp_comfort, temp_extreme, heating/cooling needed
//	Regional (3):     is_metro_area, is_coastal, region
//	Air quality (3):  pm10_grade, mask_needed, outdoor_activity_ok
//	UV (2):           has_uv, sun_protection_needed
//	Composite (1):    comfort_score
//
// Thermal and air quality fields are null when their slot is absent. UV flags
// are false when UV data is absent, since "no UV reading" is informative at
// night. Categories fail independently: an out-of-range value nulls only its
// own category.
//
// # Comfort Score
//
// Each of thermal, air quality and UV yields a contribution in [0,100]. The
// score is the weighted mean of the available contributions, with weights
// renormalized over the categories present, then adjusted for rush hour,
// weekend and extreme temperature and clamped to [0,100]. With no category
// available the score is null. Thresholds and weights live in [Reference].
package domain
