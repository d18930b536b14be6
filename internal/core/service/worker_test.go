package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"stormscout/internal/config"
	"stormscout/internal/core/domain/models"
	"stormscout/internal/core/domain/ports"
	"stormscout/internal/core/service"
)

type fakeSource struct {
	authErr  error
	fetchErr error
	reports  []models.Report
	pdfErrs  map[string]error
	gotDate  string
}

func (f *fakeSource) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeSource) FetchReports(ctx context.Context, date string) ([]models.Report, error) {
	f.gotDate = date
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.reports, nil
}

func (f *fakeSource) FetchPDF(ctx context.Context, r models.Report) ([]byte, error) {
	if err := f.pdfErrs[r.RdID]; err != nil {
		return nil, err
	}
	return []byte("%PDF-1.4 " + r.RdID), nil
}

type fakeStore struct {
	rows       map[string]*models.Report
	upsertErrs map[string]error
}

func newFakeStore(seedIDs ...string) *fakeStore {
	s := &fakeStore{rows: map[string]*models.Report{}}
	for _, id := range seedIDs {
		s.rows[id] = &models.Report{RdID: id}
	}
	return s
}

func (s *fakeStore) KnownIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	known := make(map[string]struct{}, len(s.rows))
	for id := range s.rows {
		known[id] = struct{}{}
	}
	return known, nil
}

func (s *fakeStore) Upsert(ctx context.Context, r *models.Report) error {
	if err := s.upsertErrs[r.RdID]; err != nil {
		return err
	}
	if existing, ok := s.rows[r.RdID]; ok {
		downloaded := existing.PDFDownloaded
		clone := *r
		clone.PDFDownloaded = downloaded
		s.rows[r.RdID] = &clone
		return nil
	}
	clone := *r
	s.rows[r.RdID] = &clone
	return nil
}

func (s *fakeStore) MarkDownloaded(ctx context.Context, rdID string) error {
	r, ok := s.rows[rdID]
	if !ok {
		return fmt.Errorf("%w: %s", ports.ErrNotFound, rdID)
	}
	r.PDFDownloaded = true
	return nil
}

func (s *fakeStore) ReportsByDate(ctx context.Context, date string) ([]models.Report, error) {
	var out []models.Report
	for _, r := range s.rows {
		if r.Date == date {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) Stats(ctx context.Context) (models.StoreStats, error) {
	stats := models.StoreStats{TotalReports: len(s.rows)}
	for _, r := range s.rows {
		if r.PDFDownloaded {
			stats.PDFsDownloaded++
		}
	}
	return stats, nil
}

type fakeForwarder struct {
	forwarded  [][]models.Report
	pdfDirs    []string
	forwardErr error
	errorTypes []string
}

func (f *fakeForwarder) Forward(ctx context.Context, reports []models.Report, pdfDir string) error {
	f.forwarded = append(f.forwarded, reports)
	f.pdfDirs = append(f.pdfDirs, pdfDir)
	return f.forwardErr
}

func (f *fakeForwarder) ForwardError(ctx context.Context, errType, message string, extra map[string]any) error {
	f.errorTypes = append(f.errorTypes, errType)
	return nil
}

type fakeNotifier struct {
	successes []string
	failures  []string
}

func (n *fakeNotifier) Success(ctx context.Context, title, message string) error {
	n.successes = append(n.successes, message)
	return nil
}

func (n *fakeNotifier) Error(ctx context.Context, title, message string) error {
	n.failures = append(n.failures, message)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:   "info",
		ReportURL:  "https://portal.example/analytics/reports/created-by-period",
		Username:   "user",
		Password:   "pass",
		DBPath:     filepath.Join(t.TempDir(), "reports.db"),
		ReportsDir: t.TempDir(),
	}
}

func TestWorkerRun_ProcessesNewReports(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{reports: reportsFrom("A", "B")}
	st := newFakeStore()
	fwd := &fakeForwarder{}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, st, fwd, ntfy)
	sum, err := w.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 2, sum.New)
	assert.Equal(t, 2, sum.Downloaded)
	assert.Equal(t, 0, sum.Failed)

	require.Len(t, fwd.forwarded, 1)
	assert.Equal(t, []string{"A", "B"}, ids(fwd.forwarded[0]))
	for _, r := range fwd.forwarded[0] {
		assert.True(t, r.PDFDownloaded)
	}

	for _, id := range []string{"A", "B"} {
		require.Contains(t, st.rows, id)
		assert.True(t, st.rows[id].PDFDownloaded)

		path := filepath.Join(cfg.ReportsDir, st.rows[id].PDFFileName())
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), id)
	}

	require.Len(t, ntfy.successes, 1)
	assert.Empty(t, ntfy.failures)
}

func TestWorkerRun_SkipsAlreadyKnownReports(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{reports: reportsFrom("B", "C")}
	st := newFakeStore("A", "B")

	w := service.NewWorker(cfg, zap.NewNop(), src, st, &fakeForwarder{}, &fakeNotifier{})
	sum, err := w.Run(context.Background(), "2026-08-28")
	require.NoError(t, err)

	assert.Equal(t, "2026-08-28", src.gotDate)
	assert.Equal(t, 2, sum.Fetched)
	assert.Equal(t, 1, sum.New)
	assert.Equal(t, 1, sum.Downloaded)
	assert.True(t, st.rows["C"].PDFDownloaded)
}

func TestWorkerRun_DownloadFailureIsIsolated(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{
		reports: reportsFrom("A", "C", "B"),
		pdfErrs: map[string]error{
			"C": fmt.Errorf("%w: connection reset", ports.ErrDownload),
		},
	}
	st := newFakeStore()
	fwd := &fakeForwarder{}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, st, fwd, ntfy)
	sum, err := w.Run(context.Background(), "")
	require.NoError(t, err, "per-record download failures must not fail the run")

	assert.Equal(t, 3, sum.New)
	assert.Equal(t, 2, sum.Downloaded)
	assert.Equal(t, 1, sum.Failed)

	assert.True(t, st.rows["A"].PDFDownloaded)
	assert.True(t, st.rows["B"].PDFDownloaded)
	assert.False(t, st.rows["C"].PDFDownloaded, "failed record must keep pdf_downloaded=false")

	// The batch still goes downstream and the failure is reported.
	require.Len(t, fwd.forwarded, 1)
	assert.Contains(t, fwd.errorTypes, "download_error")
	require.Len(t, ntfy.failures, 1)
	assert.Contains(t, ntfy.failures[0], "failed 1")
}

func TestWorkerRun_EmptyFetchSkipsWebhook(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{}
	fwd := &fakeForwarder{}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, newFakeStore(), fwd, ntfy)
	sum, err := w.Run(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, 0, sum.Fetched)
	assert.Empty(t, fwd.forwarded, "no new records means no webhook call")
	require.Len(t, ntfy.successes, 1)
	assert.Contains(t, ntfy.successes[0], "new 0")
}

func TestWorkerRun_AuthFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{authErr: fmt.Errorf("%w: bad credentials", ports.ErrAuth)}
	fwd := &fakeForwarder{}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, newFakeStore(), fwd, ntfy)
	_, err := w.Run(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrAuth))
	assert.Empty(t, fwd.forwarded)
	assert.Contains(t, fwd.errorTypes, "authentication_error")
	require.Len(t, ntfy.failures, 1)
}

func TestWorkerRun_FetchFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{fetchErr: fmt.Errorf("%w: status 502", ports.ErrFetch)}
	fwd := &fakeForwarder{}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, newFakeStore(), fwd, ntfy)
	_, err := w.Run(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrFetch))
	assert.Contains(t, fwd.errorTypes, "fetch_error")
}

func TestWorkerRun_WebhookFailureIsNonFatal(t *testing.T) {
	cfg := testConfig(t)
	src := &fakeSource{reports: reportsFrom("A")}
	fwd := &fakeForwarder{forwardErr: fmt.Errorf("%w: status 500", ports.ErrWebhook)}
	ntfy := &fakeNotifier{}

	w := service.NewWorker(cfg, zap.NewNop(), src, newFakeStore(), fwd, ntfy)
	sum, err := w.Run(context.Background(), "")

	require.NoError(t, err)
	assert.Equal(t, 1, sum.Downloaded)
	require.Len(t, ntfy.failures, 1, "webhook failure surfaces in the summary notification")
}
