package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType enumerates supported asynchronous report categories.
type ReportType string

const (
	ReportTypeUsageSummary ReportType = "usage_summary"
	ReportTypeUserActivity ReportType = "user_activity"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob persisted background job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams stores request-scoped options persisted as JSONB. Days is
// the lookback window for activity aggregation; Plan optionally restricts
// the report to one billing plan.
type ReportJobParams struct {
	Days   int          `json:"days"`
	Plan   *string      `json:"plan,omitempty"`
	Format ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportJobParams", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}

// GenerateReportRequest captures POST /admin/reports payload.
type GenerateReportRequest struct {
	Type   ReportType   `json:"type" validate:"required,oneof=usage_summary user_activity"`
	Format ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	Days   int          `json:"days" validate:"omitempty,min=1,max=365"`
	Plan   *string      `json:"plan,omitempty" validate:"omitempty,oneof=free pro enterprise"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string       `json:"id"`
	Status   ReportStatus `json:"status"`
	Progress int          `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string       `json:"id"`
	Status    ReportStatus `json:"status"`
	Progress  int          `json:"progress"`
	ResultURL *string      `json:"resultUrl,omitempty"`
	Error     *string      `json:"error,omitempty"`
}

// PlatformStats aggregates platform-wide totals for the admin surface.
type PlatformStats struct {
	TotalUsers           int64 `json:"total_users"`
	TotalSpaces          int64 `json:"total_spaces"`
	TotalAPIKeys         int64 `json:"total_api_keys"`
	ActiveSessions       int64 `json:"active_sessions"`
	ActiveUsersThisMonth int64 `json:"active_users_this_month"`
}

// UserActivitySummary is one row of the user_activity report.
type UserActivitySummary struct {
	UserID       string     `db:"user_id" json:"user_id"`
	Email        string     `db:"email" json:"email"`
	BillingPlan  string     `db:"billing_plan" json:"billing_plan"`
	SpaceCount   int64      `db:"space_count" json:"space_count"`
	SessionCount int64      `db:"session_count" json:"session_count"`
	APIKeyCount  int64      `db:"api_key_count" json:"api_key_count"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}
