package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stormscout/internal/adapters/destination"
	"stormscout/internal/adapters/notify"
	"stormscout/internal/adapters/store"
	"stormscout/internal/config"
	"stormscout/internal/core/service"
	"stormscout/internal/logger"
)

const dateLayout = "2006-01-02"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:           "stormscout",
		Short:         "Scrapes the stormwater compliance portal for newly published reports",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := time.Parse(dateLayout, date); err != nil {
					return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
				}
			}
			return runWorker(cmd.Context(), date)
		},
	}
	cmd.Flags().StringVar(&date, "date", "",
		"target date (YYYY-MM-DD); defaults to the latest date in the listing")

	cmd.AddCommand(newStatsCmd(), newListCmd())
	return cmd
}

func runWorker(ctx context.Context, date string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	src, err := service.CreateReportSource(cfg, log)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	fwd := destination.NewN8NForwarder(cfg.WebhookURL, cfg.ErrorWebhookURL, log)
	ntfy := notify.NewNtfyNotifier(cfg.NtfyServerURL, cfg.NtfyTopic, cfg.NtfyIcon, log)

	worker := service.NewWorker(cfg, log, src, st, fwd, ntfy)
	sum, err := worker.Run(ctx, date)
	if err != nil {
		return err
	}

	log.Info("run complete",
		zap.String("date", sum.Date),
		zap.Int("fetched", sum.Fetched),
		zap.Int("new", sum.New),
		zap.Int("downloaded", sum.Downloaded),
		zap.Int("failed", sum.Failed))
	return nil
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print totals for the local report store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("reports:         %d\n", stats.TotalReports)
			fmt.Printf("pdfs downloaded: %d\n", stats.PDFsDownloaded)
			for _, dc := range stats.RecentDates {
				fmt.Printf("  %s  %d\n", dc.Date, dc.Count)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <date>",
		Short: "List stored reports for a date (YYYY-MM-DD)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := time.Parse(dateLayout, args[0]); err != nil {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
			}

			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			reports, err := st.ReportsByDate(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			for _, r := range reports {
				downloaded := " "
				if r.PDFDownloaded {
					downloaded = "*"
				}
				fmt.Printf("%s %-12s %-8s %s (%s)\n", downloaded, r.RdID, r.Time, r.Site, r.ReportType)
			}
			fmt.Printf("%d reports for %s\n", len(reports), args[0])
			return nil
		},
	}
}

func openStore() (*store.BunStore, error) {
	return store.New(config.DBPath())
}
