package kma

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// Fetcher implements pipeline.Fetcher by requesting every feed of a tick
// from a SourceFetcher.
type Fetcher struct {
	sources SourceFetcher
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher over sources, usually a Client or CachedClient.
func NewFetcher(sources SourceFetcher, logger *slog.Logger) *Fetcher {
	return &Fetcher{sources: sources, logger: logger}
}

// Fetch requests all three feeds for tick concurrently. A feed that fails is
// logged and left out of the result; only cancellation of ctx is an error.
func (f *Fetcher) Fetch(ctx context.Context, tick time.Time) (map[domain.SourceType]domain.RawBlob, error) {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		blobs = make(map[domain.SourceType]domain.RawBlob, len(domain.SourceTypes))
	)

	for _, source := range domain.SourceTypes {
		wg.Go(func() {
			blob, err := f.sources.FetchSource(ctx, source, tick)
			if err != nil {
				f.logger.Warn("fetch source failed, omitting from tick",
					"source", source,
					"tick", domain.CanonicalTimestamp(tick),
					"error", err,
				)
				return
			}
			mu.Lock()
			blobs[source] = blob
			mu.Unlock()
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}
