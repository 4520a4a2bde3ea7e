package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
	"github.com/couchcryptid/weather-feature-etl/internal/observability"
)

// Fetcher collects the raw blobs of every feed for one hourly tick. Feeds
// that could not be fetched are missing from the map.
type Fetcher interface {
	Fetch(ctx context.Context, tick time.Time) (map[domain.SourceType]domain.RawBlob, error)
}

// FeatureBuilder turns one tick's blobs into feature records.
type FeatureBuilder interface {
	Build(blobs map[domain.SourceType]domain.RawBlob) ([]domain.FeatureRecord, domain.TickReport)
}

// BatchLoader writes a tick's feature batch to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, batch domain.FeatureBatch) error
}

// RawArchiver keeps the unparsed blobs of a tick.
type RawArchiver interface {
	SaveRawBlobs(ctx context.Context, runID string, tick time.Time, blobs map[domain.SourceType]domain.RawBlob) error
}

// Schedule controls when ticks run. Each hour at Offset past the hour, the
// pipeline processes the hour that started Lag before.
type Schedule struct {
	Offset     time.Duration
	Lag        time.Duration
	RunOnStart bool
}

// DefaultSchedule runs at ten past each hour for the previous hour.
var DefaultSchedule = Schedule{Offset: 10 * time.Minute, Lag: time.Hour}

const (
	defaultLoadAttempts = 5
	defaultBackoff      = 200 * time.Millisecond
	defaultMaxBackoff   = 5 * time.Second
)

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock, for tests.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithSchedule sets the tick schedule.
func WithSchedule(s Schedule) Option {
	return func(p *Pipeline) { p.schedule = s }
}

// WithArchiver stores every fetched blob before it is decoded.
func WithArchiver(a RawArchiver) Option {
	return func(p *Pipeline) { p.archiver = a }
}

// WithLoadRetry sets how many times a batch load is attempted and the
// backoff between attempts.
func WithLoadRetry(attempts int, initial, maxBackoff time.Duration) Option {
	return func(p *Pipeline) {
		p.loadAttempts = max(attempts, 1)
		p.backoff = initial
		p.maxBackoff = maxBackoff
	}
}

// Pipeline orchestrates the fetch-build-load cycle once per hour.
type Pipeline struct {
	fetcher  Fetcher
	builder  FeatureBuilder
	loader   BatchLoader
	archiver RawArchiver
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock
	schedule Schedule

	loadAttempts int
	backoff      time.Duration
	maxBackoff   time.Duration

	ready atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(f Fetcher, b FeatureBuilder, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		fetcher:      f,
		builder:      b,
		loader:       l,
		logger:       logger,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
		schedule:     DefaultSchedule,
		loadAttempts: defaultLoadAttempts,
		backoff:      defaultBackoff,
		maxBackoff:   defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CheckReadiness returns nil once a tick has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a tick yet")
	}
	return nil
}

// Run executes ticks on the schedule until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"offset", p.schedule.Offset,
		"lag", p.schedule.Lag,
		"run_on_start", p.schedule.RunOnStart,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	if p.schedule.RunOnStart {
		p.runScheduled(ctx, p.TickFor(p.clock.Now()))
	}

	for {
		now := p.clock.Now()
		next := NextRun(now, p.schedule.Offset)
		p.logger.Debug("waiting for next tick", "at", next)

		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		case <-p.clock.After(next.Sub(now)):
		}

		p.runScheduled(ctx, p.TickFor(next))
	}
}

func (p *Pipeline) runScheduled(ctx context.Context, tick time.Time) {
	if err := p.RunTick(ctx, tick); err != nil && ctx.Err() == nil {
		p.logger.Error("tick failed", "tick", domain.CanonicalTimestamp(tick), "error", err)
	}
}

// TickFor returns the observation hour processed by a run at now.
func (p *Pipeline) TickFor(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(-p.schedule.Lag)
}

// NextRun returns the first time strictly after now that is offset past an
// hour boundary.
func NextRun(now time.Time, offset time.Duration) time.Time {
	next := now.UTC().Truncate(time.Hour).Add(offset)
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

// RunTick fetches, builds and loads the features of one observation hour.
// Malformed input never fails a tick; only cancellation or a load that
// keeps failing after all retries does.
func (p *Pipeline) RunTick(ctx context.Context, tick time.Time) error {
	start := p.clock.Now()
	runID := uuid.NewString()
	tick = tick.UTC().Truncate(time.Hour)
	logger := p.logger.With("run_id", runID, "tick", domain.CanonicalTimestamp(tick))

	blobs, err := p.fetcher.Fetch(ctx, tick)
	if err != nil {
		return fmt.Errorf("fetch tick: %w", err)
	}
	if len(blobs) == 0 {
		logger.Warn("no source returned data for tick")
	}

	if p.archiver != nil && len(blobs) > 0 {
		if err := p.archiver.SaveRawBlobs(ctx, runID, tick, blobs); err != nil {
			logger.Error("archive raw blobs failed", "error", err)
		}
	}

	records, report := p.builder.Build(blobs)
	p.recordReport(logger, report)

	batch := domain.FeatureBatch{
		RunID:       runID,
		Tick:        tick,
		ProcessedAt: p.clock.Now().UTC(),
		Records:     records,
	}
	if err := p.loadWithRetry(ctx, logger, batch); err != nil {
		p.metrics.TicksTotal.WithLabelValues("load_error").Inc()
		return err
	}

	outcome := "success"
	if len(records) == 0 {
		outcome = "empty"
	}
	p.metrics.TicksTotal.WithLabelValues(outcome).Inc()
	p.metrics.RecordsProduced.Add(float64(len(records)))
	p.metrics.TickDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)

	logger.Info("tick complete",
		"records", len(records),
		"skipped_lines", report.Skipped(),
		"duplicates", report.Duplicates(),
		"category_errors", len(report.CategoryErrors),
		"null_comfort", report.NullComfort,
	)
	return nil
}

// recordReport turns the tick report into metrics and logs.
func (p *Pipeline) recordReport(logger *slog.Logger, report domain.TickReport) {
	for source, sr := range report.Sources {
		label := string(source)
		p.metrics.LinesDecoded.WithLabelValues(label).Add(float64(sr.Records))
		p.metrics.LinesSkipped.WithLabelValues(label).Add(float64(sr.Skipped))
		p.metrics.PartialLines.WithLabelValues(label).Add(float64(sr.Partial))
		p.metrics.Duplicates.WithLabelValues(label).Add(float64(sr.Duplicates))
		for _, f := range sr.Failures {
			logger.Debug("skipped line", "source", source, "line", f.Line, "error", f.Err)
		}
		if sr.Present && sr.Records == 0 && sr.Lines > 0 {
			logger.Warn("every line of source was malformed", "source", source, "lines", sr.Lines)
		}
	}
	for category, n := range report.CategoryFailures() {
		p.metrics.CategoryFailures.WithLabelValues(string(category)).Add(float64(n))
	}
	for _, ce := range report.CategoryErrors {
		logger.Debug("feature category nulled", "category", ce.Category, "key", ce.Key.String(), "error", ce.Err)
	}
	p.metrics.NullComfort.Add(float64(report.NullComfort))
}

func (p *Pipeline) loadWithRetry(ctx context.Context, logger *slog.Logger, batch domain.FeatureBatch) error {
	backoff := p.backoff
	var err error
	for attempt := 1; attempt <= p.loadAttempts; attempt++ {
		if err = p.loader.LoadBatch(ctx, batch); err == nil {
			return nil
		}
		p.metrics.LoadErrors.Inc()
		logger.Error("load batch failed", "error", err, "attempt", attempt, "records", len(batch.Records))

		if attempt == p.loadAttempts || !p.sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, p.maxBackoff)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("load batch after %d attempts: %w", p.loadAttempts, err)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func (p *Pipeline) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := p.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
