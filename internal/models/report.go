package models

import (
	"time"

	"gorm.io/gorm"
)

type ReportStatus string

const (
	ReportStatusSent    ReportStatus = "SENT"
	ReportStatusFailed  ReportStatus = "FAILED"
	ReportStatusSkipped ReportStatus = "SKIPPED"
)

// ReportLog is the audit trail of report dispatch attempts, scheduled and
// manual. It is observability data, never consulted for idempotency.
type ReportLog struct {
	gorm.Model
	Day        string       `json:"day" gorm:"index"`
	AttemptAt  time.Time    `json:"attempt_at"`
	Recipients string       `json:"recipients"`
	ImageCount int          `json:"image_count"`
	Manual     bool         `json:"manual"`
	Status     ReportStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
}
