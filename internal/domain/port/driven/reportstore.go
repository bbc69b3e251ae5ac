package driven

import (
	"context"

	"github.com/ericfisherdev/critchecker/internal/domain/model"
)

// ReportWriter defines the driven port for the tabular critique report.
// Write replaces the whole report; identical input must produce identical
// output so that reruns are idempotent.
type ReportWriter interface {
	Write(ctx context.Context, records []model.CritiqueRecord) error
}

// ReportStore defines the driven port for the queryable run history.
// Uses full replacement strategy: all records for a launch post are replaced
// atomically, and a run row is appended with the summary.
type ReportStore interface {
	// ReplaceForLaunch deletes every record previously stored for launch and
	// inserts records together with a run row in one transaction.
	// Returns the generated run ID.
	ReplaceForLaunch(ctx context.Context, launch model.Deviation, records []model.CritiqueRecord, summary model.RunSummary) (string, error)

	// ListByLaunch returns the stored records for launch in report order.
	ListByLaunch(ctx context.Context, launch model.Deviation) ([]model.CritiqueRecord, error)
}
