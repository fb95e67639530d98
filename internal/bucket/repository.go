package bucket

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hunter-volkman/image-emailer/internal/models"
)

// DayKey formats a timestamp as the bucket key for its calendar date,
// YYYYMMDD in the timestamp's own location.
func DayKey(t time.Time) string {
	return t.Format("20060102")
}

// ParseDayKey parses a YYYYMMDD key into a date at midnight in loc.
func ParseDayKey(day string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", day, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be in YYYYMMDD format", day)
	}
	return t, nil
}

// Repository maps calendar days to their ordered capture records. Buckets
// are append-only; the core never deletes records.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Append stores one committed capture record.
func (r *Repository) Append(rec *models.ImageRecord) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("append image record for %s: %w", rec.Day, err)
	}
	return nil
}

// List returns the day's records ordered by capture timestamp.
func (r *Repository) List(day string) ([]models.ImageRecord, error) {
	var recs []models.ImageRecord
	if err := r.db.Where("day = ?", day).Order("timestamp asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list image records for %s: %w", day, err)
	}
	return recs, nil
}

// Exists reports whether any record was committed for the day.
func (r *Repository) Exists(day string) (bool, error) {
	var count int64
	if err := r.db.Model(&models.ImageRecord{}).Where("day = ?", day).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count image records for %s: %w", day, err)
	}
	return count > 0, nil
}

// Latest returns the most recent record across all days, or nil when the
// repository is empty. Startup reconciliation uses it to repair the capture
// watermark after a crash between an append and the state write.
func (r *Repository) Latest() (*models.ImageRecord, error) {
	var rec models.ImageRecord
	err := r.db.Order("timestamp desc").First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest image record: %w", err)
	}
	return &rec, nil
}

// LogReport appends a dispatch attempt to the report audit log.
func (r *Repository) LogReport(entry *models.ReportLog) error {
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("log report attempt for %s: %w", entry.Day, err)
	}
	return nil
}
