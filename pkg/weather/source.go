// Package weather fetches current conditions for a location.
package weather

import (
	"context"

	"github.com/ogulcanaydogan/aeris/pkg/hazard"
)

// Source produces a condition snapshot for a coordinate.
type Source interface {
	Fetch(ctx context.Context, lat, lon float64) (hazard.Snapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context, lat, lon float64) (hazard.Snapshot, error)

func (f SourceFunc) Fetch(ctx context.Context, lat, lon float64) (hazard.Snapshot, error) {
	return f(ctx, lat, lon)
}
