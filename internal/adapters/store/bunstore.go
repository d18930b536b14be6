// Package store persists reports in a local SQLite table via bun. The
// table is the sole source of truth for which reports have already been
// processed.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"stormscout/internal/core/domain/models"
	"stormscout/internal/core/domain/ports"
)

var _ ports.ReportStore = (*BunStore)(nil)

type BunStore struct {
	db *bun.DB
}

func New(dsn string) (*BunStore, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ports.ErrStorage, err)
	}

	s := &BunStore{db: bun.NewDB(sqldb, sqlitedialect.New())}
	if err := s.init(context.Background()); err != nil {
		sqldb.Close()
		return nil, err
	}
	return s, nil
}

func (s *BunStore) init(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*models.Report)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create reports table: %v", ports.ErrStorage, err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*models.Report)(nil)).
		Index("idx_reports_date").
		Column("date").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("%w: create date index: %v", ports.ErrStorage, err)
	}
	return nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) KnownIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := s.db.NewSelect().
		Model((*models.Report)(nil)).
		Column("rd_id").
		Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("%w: load identifiers: %v", ports.ErrStorage, err)
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// Upsert refreshes descriptive columns only; pdf_downloaded and created_at
// survive re-fetches of an already-known report.
func (s *BunStore) Upsert(ctx context.Context, report *models.Report) error {
	if report.RdID == "" {
		return fmt.Errorf("%w: upsert without rd_id", ports.ErrStorage)
	}

	_, err := s.db.NewInsert().
		Model(report).
		On("CONFLICT (rd_id) DO UPDATE").
		Set("id = EXCLUDED.id").
		Set("site = EXCLUDED.site").
		Set("site_url = EXCLUDED.site_url").
		Set("program = EXCLUDED.program").
		Set("report_type = EXCLUDED.report_type").
		Set("report_definition = EXCLUDED.report_definition").
		Set("report_definition_url = EXCLUDED.report_definition_url").
		Set("site_tags = EXCLUDED.site_tags").
		Set("publishing_user = EXCLUDED.publishing_user").
		Set("date = EXCLUDED.date").
		Set("time = EXCLUDED.time").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: upsert %s: %v", ports.ErrStorage, report.RdID, err)
	}
	return nil
}

func (s *BunStore) MarkDownloaded(ctx context.Context, rdID string) error {
	res, err := s.db.NewUpdate().
		Model((*models.Report)(nil)).
		Set("pdf_downloaded = ?", true).
		Where("rd_id = ?", rdID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: mark downloaded %s: %v", ports.ErrStorage, rdID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: mark downloaded %s: %v", ports.ErrStorage, rdID, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, rdID)
	}
	return nil
}

func (s *BunStore) ReportsByDate(ctx context.Context, date string) ([]models.Report, error) {
	var reports []models.Report
	if err := s.db.NewSelect().
		Model(&reports).
		Where("date = ?", date).
		Order("time DESC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("%w: reports by date %s: %v", ports.ErrStorage, date, err)
	}
	return reports, nil
}

func (s *BunStore) Stats(ctx context.Context) (models.StoreStats, error) {
	var stats models.StoreStats

	total, err := s.db.NewSelect().
		Model((*models.Report)(nil)).
		Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: count reports: %v", ports.ErrStorage, err)
	}
	stats.TotalReports = total

	downloaded, err := s.db.NewSelect().
		Model((*models.Report)(nil)).
		Where("pdf_downloaded = ?", true).
		Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("%w: count downloads: %v", ports.ErrStorage, err)
	}
	stats.PDFsDownloaded = downloaded

	if err := s.db.NewSelect().
		Model((*models.Report)(nil)).
		ColumnExpr("date").
		ColumnExpr("count(*) AS count").
		Group("date").
		Order("date DESC").
		Limit(10).
		Scan(ctx, &stats.RecentDates); err != nil {
		return stats, fmt.Errorf("%w: recent dates: %v", ports.ErrStorage, err)
	}

	return stats, nil
}
