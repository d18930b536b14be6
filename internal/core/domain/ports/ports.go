package ports

import (
	"context"
	"errors"

	"stormscout/internal/core/domain/models"
)

// Failure classes. Adapters wrap these with fmt.Errorf("%w: ...") so the
// worker can classify with errors.Is without knowing adapter internals.
var (
	ErrAuth     = errors.New("portal authentication failed")
	ErrFetch    = errors.New("report listing fetch failed")
	ErrDownload = errors.New("pdf download failed")
	ErrStorage  = errors.New("report store failure")
	ErrNotFound = errors.New("report not found")
	ErrWebhook  = errors.New("webhook delivery failed")
)

// ReportSource is the portal-facing collaborator: it owns the session and
// knows how to turn the listing page into Report records. An empty date
// means "the most recent date in the listing".
type ReportSource interface {
	Authenticate(ctx context.Context) error
	FetchReports(ctx context.Context, date string) ([]models.Report, error)
	FetchPDF(ctx context.Context, report models.Report) ([]byte, error)
}

// ReportStore persists every report ever seen and is the sole source of
// truth for "already processed".
type ReportStore interface {
	// KnownIdentifiers returns every rd_id currently persisted. An empty
	// or freshly created store yields an empty set, not an error.
	KnownIdentifiers(ctx context.Context) (map[string]struct{}, error)
	// Upsert inserts the report or refreshes its descriptive columns.
	// pdf_downloaded and created_at are never touched by an upsert.
	Upsert(ctx context.Context, report *models.Report) error
	// MarkDownloaded flips pdf_downloaded to true. Calling it again for the
	// same report is a no-op; an unknown rd_id yields ErrNotFound.
	MarkDownloaded(ctx context.Context, rdID string) error
	ReportsByDate(ctx context.Context, date string) ([]models.Report, error)
	Stats(ctx context.Context) (models.StoreStats, error)
}

// Forwarder delivers new reports (and failures) to the downstream
// automation endpoint. Errors are reported to the caller but must never
// abort the run.
type Forwarder interface {
	Forward(ctx context.Context, reports []models.Report, pdfDir string) error
	ForwardError(ctx context.Context, errType, message string, extra map[string]any) error
}

// Notifier pushes short human-readable run outcomes. Best-effort.
type Notifier interface {
	Success(ctx context.Context, title, message string) error
	Error(ctx context.Context, title, message string) error
}
