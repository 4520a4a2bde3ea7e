package domain

// SourceReport summarizes one feed's contribution to a tick.
type SourceReport struct {
	Present    bool // a blob was supplied for the source
	Lines      int
	Records    int
	Skipped    int
	Partial    int
	Duplicates int
	Failures   []LineError
}

// TickReport carries the recoverable problems seen while building one tick.
// It is informational only; nothing in it stops the tick.
type TickReport struct {
	Sources        map[SourceType]SourceReport
	Aligned        int
	CategoryErrors []CategoryError
	NullComfort    int
}

// Skipped is the total number of skipped lines across sources.
func (r TickReport) Skipped() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Skipped
	}
	return n
}

// Duplicates is the total number of discarded duplicate records.
func (r TickReport) Duplicates() int {
	n := 0
	for _, s := range r.Sources {
		n += s.Duplicates
	}
	return n
}

// CategoryFailures counts category errors by category.
func (r TickReport) CategoryFailures() map[Category]int {
	out := make(map[Category]int)
	for _, e := range r.CategoryErrors {
		out[e.Category]++
	}
	return out
}

// BuildFeatures runs one tick through decode, align and derive. Sources
// missing from blobs contribute no records. It never fails: an empty or fully
// malformed tick yields no records and a report explaining why.
func BuildFeatures(blobs map[SourceType]RawBlob, ref *Reference) ([]FeatureRecord, TickReport) {
	report := TickReport{Sources: make(map[SourceType]SourceReport, len(SourceTypes))}

	var parsed []ParsedRecord
	for _, source := range SourceTypes {
		blob, ok := blobs[source]
		if !ok {
			report.Sources[source] = SourceReport{}
			continue
		}
		// The map key decides the decoder so a mislabeled blob cannot fill
		// another source's slot.
		blob.Source = source
		res := Decode(blob)
		report.Sources[source] = SourceReport{
			Present:  true,
			Lines:    res.Lines,
			Records:  len(res.Records),
			Skipped:  res.Skipped,
			Partial:  res.Partial,
			Failures: res.Failures,
		}
		parsed = append(parsed, res.Records...)
	}

	aligned := Align(parsed)
	report.Aligned = len(aligned.Records)
	for source, n := range aligned.Duplicates {
		sr := report.Sources[source]
		sr.Duplicates = n
		report.Sources[source] = sr
	}

	records := make([]FeatureRecord, 0, len(aligned.Records))
	for _, rec := range aligned.Records {
		feature, errs := Derive(rec, ref)
		report.CategoryErrors = append(report.CategoryErrors, errs...)
		if feature.ComfortScore == nil {
			report.NullComfort++
		}
		records = append(records, feature)
	}

	return records, report
}
