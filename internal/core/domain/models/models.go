package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Report is one row of the portal's created-by-period listing. RdID is the
// report definition id the portal embeds in the definition URL and is the
// stable key across runs; everything else is descriptive metadata passed
// through to the webhook as-is.
type Report struct {
	bun.BaseModel `bun:"table:reports,alias:r"`

	RdID                string    `bun:"rd_id,pk" json:"rd_id"`
	ID                  string    `bun:"id" json:"id"`
	Site                string    `bun:"site,notnull" json:"site"`
	SiteURL             string    `bun:"site_url" json:"site_url"`
	Program             string    `bun:"program" json:"program"`
	ReportType          string    `bun:"report_type" json:"report_type"`
	ReportDefinition    string    `bun:"report_definition" json:"report_definition"`
	ReportDefinitionURL string    `bun:"report_definition_url" json:"report_definition_url"`
	SiteTags            string    `bun:"site_tags" json:"site_tags"`
	PublishingUser      string    `bun:"publishing_user" json:"publishing_user"`
	Date                string    `bun:"date,notnull" json:"date"`
	Time                string    `bun:"time" json:"time"`
	PDFDownloaded       bool      `bun:"pdf_downloaded,default:false" json:"pdf_downloaded"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"-"`
}

// PDFFileName returns the deterministic on-disk name for this report's PDF,
// so a retried download overwrites instead of duplicating.
func (r Report) PDFFileName() string {
	return fmt.Sprintf("%s_%s.pdf", r.RdID, r.Date)
}

// DateCount pairs a listing date with the number of stored reports for it.
type DateCount struct {
	Date  string `bun:"date"`
	Count int    `bun:"count"`
}

// StoreStats summarizes the local report table.
type StoreStats struct {
	TotalReports   int
	PDFsDownloaded int
	RecentDates    []DateCount
}
