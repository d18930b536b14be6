package service

import (
	"strings"

	"go.uber.org/zap"

	"stormscout/internal/adapters/source"
	"stormscout/internal/config"
	"stormscout/internal/core/domain/ports"
)

func CreateReportSource(cfg *config.Config, log *zap.Logger) (ports.ReportSource, error) {
	return source.NewCompliAdapter(source.Options{
		ReportURL: cfg.ReportURL,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Debug:     strings.EqualFold(cfg.LogLevel, "debug"),
		Logger:    log,
	})
}
