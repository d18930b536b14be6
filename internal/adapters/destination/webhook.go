// Package destination forwards newly discovered reports to the n8n
// automation webhook, attaching the downloaded PDFs.
package destination

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"stormscout/internal/adapters/util"
	"stormscout/internal/core/domain/models"
	"stormscout/internal/core/domain/ports"
)

var _ ports.Forwarder = (*N8NForwarder)(nil)

type N8NForwarder struct {
	webhookURL      string
	errorWebhookURL string
	http            *resty.Client
	log             *zap.Logger
}

func NewN8NForwarder(webhookURL, errorWebhookURL string, log *zap.Logger) *N8NForwarder {
	client := resty.New()
	client.SetTimeout(5 * time.Minute)
	client.SetTransport(&util.RetryTransport{MaxRetries: 3})

	return &N8NForwarder{
		webhookURL:      webhookURL,
		errorWebhookURL: errorWebhookURL,
		http:            client,
		log:             log,
	}
}

// Forward sends one multipart request: a "reports" field holding the JSON
// array plus one file part per report whose PDF exists on disk. A record
// whose PDF is missing still goes out in the JSON.
func (f *N8NForwarder) Forward(ctx context.Context, reports []models.Report, pdfDir string) error {
	if f.webhookURL == "" {
		f.log.Warn("webhook url not configured, skipping forward")
		return nil
	}

	payload, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("%w: marshal reports: %v", ports.ErrWebhook, err)
	}

	req := f.http.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{"reports": string(payload)})

	attached := 0
	for _, r := range reports {
		path := filepath.Join(pdfDir, r.PDFFileName())
		data, err := os.ReadFile(path)
		if err != nil {
			f.log.Warn("pdf missing, forwarding record without file",
				zap.String("rd_id", r.RdID),
				zap.String("site", r.Site),
				zap.Error(err))
			continue
		}
		key := fmt.Sprintf("pdf_%s_%s", r.ID, r.RdID)
		req.SetFileReader(key, filepath.Base(path), bytes.NewReader(data))
		attached++
	}

	res, err := req.Post(f.webhookURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ports.ErrWebhook, err)
	}
	if res.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: webhook returned status %d", ports.ErrWebhook, res.StatusCode())
	}

	f.log.Info("forwarded reports to webhook",
		zap.Int("reports", len(reports)),
		zap.Int("pdfs", attached))
	return nil
}

// ForwardError posts a small JSON error event to the separate monitoring
// endpoint. Unset URL means monitoring is not wired up; that is fine.
func (f *N8NForwarder) ForwardError(ctx context.Context, errType, message string, extra map[string]any) error {
	if f.errorWebhookURL == "" {
		f.log.Debug("error webhook url not configured, skipping")
		return nil
	}
	if extra == nil {
		extra = map[string]any{}
	}

	body := map[string]any{
		"timestamp":       time.Now().Format(time.RFC3339),
		"error_type":      errType,
		"error_message":   message,
		"script_name":     "stormscout",
		"additional_data": extra,
	}

	res, err := f.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(f.errorWebhookURL)
	if err != nil {
		return fmt.Errorf("%w: error webhook: %v", ports.ErrWebhook, err)
	}
	if res.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: error webhook returned status %d", ports.ErrWebhook, res.StatusCode())
	}
	return nil
}
