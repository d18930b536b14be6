package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"stormscout/internal/config"
	"stormscout/internal/core/domain/models"
	"stormscout/internal/core/domain/ports"
)

// Worker runs one scrape-reconcile-download pass and exits. Records are
// processed strictly one at a time so a failure on one report cannot affect
// the others.
type Worker struct {
	cfg     *config.Config
	log     *zap.Logger
	source  ports.ReportSource
	store   ports.ReportStore
	forward ports.Forwarder
	notify  ports.Notifier
}

func NewWorker(
	cfg *config.Config,
	log *zap.Logger,
	source ports.ReportSource,
	store ports.ReportStore,
	forward ports.Forwarder,
	notify ports.Notifier,
) *Worker {
	return &Worker{
		cfg:     cfg,
		log:     log,
		source:  source,
		store:   store,
		forward: forward,
		notify:  notify,
	}
}

// RunSummary is what one invocation accomplished.
type RunSummary struct {
	Date       string
	Fetched    int
	New        int
	Downloaded int
	Failed     int
}

func (s RunSummary) String() string {
	return fmt.Sprintf("fetched %d, new %d, downloaded %d, failed %d (date %s)",
		s.Fetched, s.New, s.Downloaded, s.Failed, s.Date)
}

// Run executes the pipeline for the given date; an empty date means the
// most recent date the portal lists. Per-record download failures are
// logged and counted but do not fail the run; authentication, listing and
// identifier-load failures do.
func (w *Worker) Run(ctx context.Context, date string) (RunSummary, error) {
	var sum RunSummary

	if err := w.source.Authenticate(ctx); err != nil {
		w.fatal(ctx, "Authentication Failed", "authentication_error", err)
		return sum, err
	}

	fetched, err := w.source.FetchReports(ctx, date)
	if err != nil {
		w.fatal(ctx, "Report Fetch Failed", "fetch_error", err)
		return sum, err
	}
	sum.Fetched = len(fetched)
	if len(fetched) > 0 {
		sum.Date = fetched[0].Date
	} else {
		sum.Date = date
	}

	known, err := w.store.KnownIdentifiers(ctx)
	if err != nil {
		w.fatal(ctx, "Report Store Failed", "storage_error", err)
		return sum, err
	}

	fresh := Reconcile(fetched, known)
	sum.New = len(fresh)
	w.log.Info("reconciled against store",
		zap.Int("fetched", sum.Fetched),
		zap.Int("known", len(known)),
		zap.Int("new", sum.New))

	if len(fresh) > 0 {
		if err := os.MkdirAll(w.cfg.ReportsDir, 0o755); err != nil {
			err = fmt.Errorf("%w: create reports dir: %v", ports.ErrStorage, err)
			w.fatal(ctx, "Report Store Failed", "storage_error", err)
			return sum, err
		}
	}

	for i := range fresh {
		r := &fresh[i]

		if err := w.store.Upsert(ctx, r); err != nil {
			sum.Failed++
			w.log.Error("report upsert failed",
				zap.String("rd_id", r.RdID),
				zap.String("site", r.Site),
				zap.Error(err))
			continue
		}

		if err := w.downloadPDF(ctx, r); err != nil {
			sum.Failed++
			w.log.Error("pdf download failed",
				zap.String("rd_id", r.RdID),
				zap.String("site", r.Site),
				zap.Error(err))
			if werr := w.forward.ForwardError(ctx, "download_error", err.Error(), map[string]any{
				"site":      r.Site,
				"report_id": r.ID,
				"url":       r.ReportDefinitionURL,
			}); werr != nil {
				w.log.Warn("error webhook failed", zap.Error(werr))
			}
			continue
		}

		r.PDFDownloaded = true
		sum.Downloaded++
		w.log.Info("report processed",
			zap.String("rd_id", r.RdID),
			zap.String("site", r.Site))
	}

	webhookOK := true
	if len(fresh) > 0 {
		if err := w.forward.Forward(ctx, fresh, w.cfg.ReportsDir); err != nil {
			webhookOK = false
			w.log.Error("webhook forward failed", zap.Error(err))
		}
	}

	if stats, err := w.store.Stats(ctx); err != nil {
		w.log.Warn("store stats unavailable", zap.Error(err))
	} else {
		w.log.Info("store totals",
			zap.Int("reports", stats.TotalReports),
			zap.Int("pdfs_downloaded", stats.PDFsDownloaded))
	}

	if sum.Failed > 0 || !webhookOK {
		w.notifyBestEffort(ctx, false, "Stormwater Run Completed With Failures", sum.String())
	} else {
		w.notifyBestEffort(ctx, true, "Stormwater Reports Processed", sum.String())
	}

	return sum, nil
}

// downloadPDF fetches the binary, writes it to the deterministic path, and
// flips the stored flag. Any failure leaves pdf_downloaded false.
func (w *Worker) downloadPDF(ctx context.Context, r *models.Report) error {
	data, err := w.source.FetchPDF(ctx, *r)
	if err != nil {
		return err
	}

	path := filepath.Join(w.cfg.ReportsDir, r.PDFFileName())
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return w.store.MarkDownloaded(ctx, r.RdID)
}

func (w *Worker) fatal(ctx context.Context, title, errType string, err error) {
	w.log.Error(title, zap.Error(err))
	w.notifyBestEffort(ctx, false, title, err.Error())
	if werr := w.forward.ForwardError(ctx, errType, err.Error(), nil); werr != nil {
		w.log.Warn("error webhook failed", zap.Error(werr))
	}
}

func (w *Worker) notifyBestEffort(ctx context.Context, success bool, title, message string) {
	var err error
	if success {
		err = w.notify.Success(ctx, title, message)
	} else {
		err = w.notify.Error(ctx, title, message)
	}
	if err != nil {
		w.log.Warn("notification failed", zap.String("title", title), zap.Error(err))
	}
}
