package ports

import (
	"context"

	"floodattr/domain/attrib"
	"floodattr/domain/core"
)

// LedgerWriterPort provides append-only write access to run reports.
type LedgerWriterPort interface {
	SaveReport(ctx context.Context, report *attrib.RunReport) error
}

// LedgerReaderPort provides read-only access to stored run reports. Use this
// for exports and the report server.
type LedgerReaderPort interface {
	GetReport(ctx context.Context, id core.RunID) (*attrib.RunReport, error)
	LatestReport(ctx context.Context) (*attrib.RunReport, error)
	ListRuns(ctx context.Context, limit int) ([]core.RunID, error)
}

// LedgerPort combines read and write access.
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}
