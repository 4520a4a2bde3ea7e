package pipeline

import (
	"context"
	"errors"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/weather-feature-etl/internal/domain"
)

// Builder implements FeatureBuilder with the domain decode, align and
// derive steps over fixed reference data.
type Builder struct {
	ref *domain.Reference
}

// NewBuilder creates a Builder. The reference is read-only and may be
// shared.
func NewBuilder(ref *domain.Reference) *Builder {
	return &Builder{ref: ref}
}

func (b *Builder) Build(blobs map[domain.SourceType]domain.RawBlob) ([]domain.FeatureRecord, domain.TickReport) {
	return domain.BuildFeatures(blobs, b.ref)
}

// FanOut loads every batch into each of its loaders in order. All loaders
// are attempted even when one fails; the errors are joined.
type FanOut []BatchLoader

func (f FanOut) LoadBatch(ctx context.Context, batch domain.FeatureBatch) error {
	var errs []error
	for _, l := range f {
		if err := l.LoadBatch(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Readiness is ready only when every checker is. The first failure is
// returned.
type Readiness []sharedobs.ReadinessChecker

func (r Readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
