package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reverie-ai/reverie-api/internal/models"
	"github.com/reverie-ai/reverie-api/pkg/export"
	"github.com/reverie-ai/reverie-api/pkg/storage"
)

type statsProvider interface {
	PlatformStats(ctx context.Context) (*models.PlatformStats, bool, error)
}

type activityStore interface {
	UserActivity(ctx context.Context, since time.Time, plan *string) ([]models.UserActivitySummary, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	stats    statsProvider
	activity activityStore
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(stats statsProvider, activity activityStore, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		stats:    stats,
		activity: activity,
		storage:  storage,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset according to the job definition and stores the
// rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	planPart := "all"
	if job.Params.Plan != nil && *job.Params.Plan != "" {
		planPart = *job.Params.Plan
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), planPart, timestamp, job.Params.Format)
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeUsageSummary:
		return s.buildUsageSummaryDataset(ctx)
	case models.ReportTypeUserActivity:
		return s.buildUserActivityDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildUsageSummaryDataset(ctx context.Context) (export.Dataset, string, error) {
	stats, _, err := s.stats.PlatformStats(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := []map[string]string{
		{"Metric": "Total Users", "Value": fmt.Sprintf("%d", stats.TotalUsers)},
		{"Metric": "Total Workspaces", "Value": fmt.Sprintf("%d", stats.TotalSpaces)},
		{"Metric": "Active API Keys", "Value": fmt.Sprintf("%d", stats.TotalAPIKeys)},
		{"Metric": "Active Sessions", "Value": fmt.Sprintf("%d", stats.ActiveSessions)},
		{"Metric": "Active Users (30 days)", "Value": fmt.Sprintf("%d", stats.ActiveUsersThisMonth)},
	}
	dataset := export.Dataset{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}
	return dataset, "Usage Summary Report", nil
}

func (s *ExportService) buildUserActivityDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	days := params.Days
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	summaries, err := s.activity.UserActivity(ctx, since, params.Plan)
	if err != nil {
		return export.Dataset{}, "", err
	}

	dataRows := make([]map[string]string, 0, len(summaries))
	for _, row := range summaries {
		dataRows = append(dataRows, map[string]string{
			"User ID":    row.UserID,
			"Email":      row.Email,
			"Plan":       row.BillingPlan,
			"Workspaces": fmt.Sprintf("%d", row.SpaceCount),
			"Sessions":   fmt.Sprintf("%d", row.SessionCount),
			"API Keys":   fmt.Sprintf("%d", row.APIKeyCount),
			"Last Login": formatReportTime(row.LastLoginAt),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"User ID", "Email", "Plan", "Workspaces", "Sessions", "API Keys", "Last Login"},
		Rows:    dataRows,
	}
	title := fmt.Sprintf("User Activity Report (%d days)", days)
	return dataset, title, nil
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
