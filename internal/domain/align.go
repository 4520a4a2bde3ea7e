package domain

import (
	"sort"
)

// AlignResult holds the joined records of one tick.
type AlignResult struct {
	Records []AlignedRecord

	// Duplicates counts records discarded because a later record of the same
	// source arrived for the same key.
	Duplicates map[SourceType]int
}

// Align full-outer-joins parsed records on (station, timestamp). For a
// repeated (source, station, timestamp) the later record wins. Output is
// ordered by timestamp, then station id.
func Align(records []ParsedRecord) AlignResult {
	result := AlignResult{Duplicates: make(map[SourceType]int)}
	byKey := make(map[string]*AlignedRecord)

	for i := range records {
		rec := records[i]
		if !rec.Source.Valid() {
			continue
		}
		key := rec.Key()
		aligned, ok := byKey[key.String()]
		if !ok {
			aligned = &AlignedRecord{StationID: key.StationID, Timestamp: key.Timestamp.UTC()}
			byKey[key.String()] = aligned
		}

		slot := slotFor(aligned, rec.Source)
		if *slot != nil {
			result.Duplicates[rec.Source]++
		}
		*slot = &rec
	}

	result.Records = make([]AlignedRecord, 0, len(byKey))
	for _, aligned := range byKey {
		result.Records = append(result.Records, *aligned)
	}
	sort.Slice(result.Records, func(i, j int) bool {
		a, b := result.Records[i], result.Records[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.StationID < b.StationID
	})

	return result
}

func slotFor(a *AlignedRecord, source SourceType) **ParsedRecord {
	switch source {
	case SourceThermal:
		return &a.Thermal
	case SourceParticulate:
		return &a.Particulate
	default:
		return &a.UV
	}
}
