package ports

import (
	"context"

	"floodattr/domain/attrib"
	"floodattr/domain/panel"
)

// PanelSource delivers raw city-week rows from the ingestion layer. All file
// access completes before the core receives its inputs.
type PanelSource interface {
	LoadRows(ctx context.Context) ([]panel.RawRow, error)
}

// ProjectionSource delivers the external future-population table keyed by
// (city, scenario, year), consumed only by the scenario projection step.
type ProjectionSource interface {
	LoadProjections(ctx context.Context) ([]attrib.PopulationProjection, error)
}
