package models

import (
	"time"

	"gorm.io/gorm"
)

// ImageRecord is one committed capture inside a day bucket. Day is the
// calendar date in the reporting timezone, formatted YYYYMMDD.
type ImageRecord struct {
	gorm.Model
	Day       string    `json:"day" gorm:"index;not null"`
	Timestamp time.Time `json:"timestamp" gorm:"not null"`
	Path      string    `json:"path" gorm:"not null"`
}
