// Package source scrapes the Compli portal's created-by-period report
// listing over plain HTTP, replacing the browser session the portal was
// originally driven with.
package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"stormscout/internal/adapters/util"
	"stormscout/internal/core/domain/models"
	"stormscout/internal/core/domain/ports"
)

const (
	loginUserSelector = "#i-username"
	loginPassSelector = "#i-password"
	downloadSelector  = "#downloadUrl"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

var _ ports.ReportSource = (*CompliAdapter)(nil)

type CompliAdapter struct {
	http      *resty.Client
	log       *zap.Logger
	baseURL   *url.URL
	reportURL string
	username  string
	password  string
}

type Options struct {
	ReportURL string
	Username  string
	Password  string
	Debug     bool
	Logger    *zap.Logger
}

func NewCompliAdapter(opts Options) (*CompliAdapter, error) {
	base, err := url.Parse(opts.ReportURL)
	if err != nil {
		return nil, fmt.Errorf("parse report url: %w", err)
	}

	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.SetHeader("user-agent", userAgent)
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(2 * time.Minute)

	transport := cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	if opts.Debug {
		transport = &util.LoggingTransport{Base: transport, Log: opts.Logger}
	}
	client.GetClient().Transport = transport

	return &CompliAdapter{
		http:      client,
		log:       opts.Logger,
		baseURL:   base,
		reportURL: opts.ReportURL,
		username:  opts.Username,
		password:  opts.Password,
	}, nil
}

// Authenticate loads the report page and, if the portal answered with its
// login form instead, submits credentials and verifies the form is gone.
func (a *CompliAdapter) Authenticate(ctx context.Context) error {
	doc, err := a.getDocument(ctx, a.reportURL)
	if err != nil {
		return fmt.Errorf("%w: fetch report page: %v", ports.ErrAuth, err)
	}

	if doc.Find(loginUserSelector).Length() == 0 {
		a.log.Debug("session already authenticated")
		return nil
	}

	a.log.Info("login form detected, authenticating")
	return a.login(ctx, doc)
}

func (a *CompliAdapter) login(ctx context.Context, doc *goquery.Document) error {
	userField := doc.Find(loginUserSelector).AttrOr("name", "username")
	passField := doc.Find(loginPassSelector).AttrOr("name", "password")
	action := doc.Find(loginUserSelector).Closest("form").AttrOr("action", "")

	target := a.reportURL
	if action != "" {
		target = a.absURL(action)
	}

	res, err := a.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			userField: a.username,
			passField: a.password,
		}).
		Post(target)
	if err != nil {
		return fmt.Errorf("%w: submit login form: %v", ports.ErrAuth, err)
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return fmt.Errorf("%w: parse post-login page: %v", ports.ErrAuth, err)
	}
	if doc.Find(loginUserSelector).Length() > 0 {
		return fmt.Errorf("%w: login form still present after submit", ports.ErrAuth)
	}

	a.log.Info("portal login succeeded")
	return nil
}

// FetchReports returns the listing rows matching date in row order. An
// empty date selects the first row's date: the listing is newest-first, so
// that is the most recent publication date.
func (a *CompliAdapter) FetchReports(ctx context.Context, date string) ([]models.Report, error) {
	res, err := a.http.R().
		SetContext(ctx).
		SetQueryParam("length", "100").
		Get(a.reportURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrFetch, err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: listing returned status %d", ports.ErrFetch, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("%w: parse listing: %v", ports.ErrFetch, err)
	}

	rows := doc.Find("#dataTable tbody tr")
	if rows.Length() == 0 {
		return nil, fmt.Errorf("%w: report table not found", ports.ErrFetch)
	}

	filter := date
	var reports []models.Report
	rows.Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 8 {
			return
		}
		rowDate := cellText(cells, 6)
		if filter == "" {
			filter = rowDate
			a.log.Info("using latest date from listing", zap.String("date", filter))
		}
		if rowDate != filter {
			return
		}
		reports = append(reports, a.parseRow(cells))
	})

	a.log.Info("fetched report listing",
		zap.String("date", filter),
		zap.Int("rows", rows.Length()),
		zap.Int("matching", len(reports)))
	return reports, nil
}

func (a *CompliAdapter) parseRow(cells *goquery.Selection) models.Report {
	siteURL := a.absURL(cells.Eq(0).Find("a").AttrOr("href", ""))
	defURL := a.absURL(cells.Eq(3).Find("a").AttrOr("href", ""))

	return models.Report{
		RdID:                lastPathSegment(defURL),
		ID:                  lastPathSegment(siteURL),
		Site:                cellText(cells, 0),
		SiteURL:             siteURL,
		Program:             cellText(cells, 1),
		ReportType:          cellText(cells, 2),
		ReportDefinition:    cellText(cells, 3),
		ReportDefinitionURL: defURL,
		SiteTags:            cellText(cells, 4),
		PublishingUser:      cellText(cells, 5),
		Date:                cellText(cells, 6),
		Time:                cellText(cells, 7),
	}
}

// FetchPDF opens the report definition page, finds the download link, and
// returns the PDF bytes.
func (a *CompliAdapter) FetchPDF(ctx context.Context, report models.Report) ([]byte, error) {
	if report.ReportDefinitionURL == "" {
		return nil, fmt.Errorf("%w: report %s has no definition url", ports.ErrDownload, report.RdID)
	}

	doc, err := a.getDocument(ctx, report.ReportDefinitionURL)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch definition page for %s: %v", ports.ErrDownload, report.Site, err)
	}

	href := doc.Find(downloadSelector).AttrOr("href", "")
	if href == "" {
		return nil, fmt.Errorf("%w: no download link for %s", ports.ErrDownload, report.Site)
	}

	res, err := a.http.R().
		SetContext(ctx).
		Get(a.absURL(href))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ports.ErrDownload, report.Site, err)
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ports.ErrDownload, report.Site, res.StatusCode())
	}
	if len(res.Body()) == 0 {
		return nil, fmt.Errorf("%w: empty pdf body for %s", ports.ErrDownload, report.Site)
	}
	return res.Body(), nil
}

func (a *CompliAdapter) getDocument(ctx context.Context, target string) (*goquery.Document, error) {
	res, err := a.http.R().
		SetContext(ctx).
		Get(target)
	if err != nil {
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d from %s", res.StatusCode(), target)
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
}

func (a *CompliAdapter) absURL(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return a.baseURL.ResolveReference(ref).String()
}

func cellText(cells *goquery.Selection, i int) string {
	return strings.TrimSpace(cells.Eq(i).Text())
}

func lastPathSegment(raw string) string {
	trimmed := strings.TrimRight(raw, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		return trimmed[idx+1:]
	}
	return trimmed
}
