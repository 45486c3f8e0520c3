package models

import (
	"time"

	"gorm.io/datatypes"
)

// JudgedSubmission records one evaluated submission and its verdict.
type JudgedSubmission struct {
	ID          string         `gorm:"primaryKey;size:36" json:"id"`
	ProblemID   string         `gorm:"size:64;not null;index" json:"problem_id"`
	Language    string         `gorm:"size:32;not null" json:"language"`
	Filename    string         `gorm:"size:255" json:"filename"`
	SourceHash  string         `gorm:"size:64;index" json:"source_hash"`
	Code        string         `gorm:"size:2;not null;index" json:"code"`
	Description string         `gorm:"type:text" json:"description"`
	Trace       string         `gorm:"type:text" json:"trace"`
	Cases       datatypes.JSON `json:"cases"`
	Cached      bool           `gorm:"default:false" json:"cached"`
	DurationMs  int64          `gorm:"default:0" json:"duration_ms"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CaseRecord is the persisted shape of a single graded run.
type CaseRecord struct {
	Index      int    `json:"index"`
	State      string `json:"state"`
	Code       string `json:"code"`
	DurationMs int64  `json:"duration_ms"`
}
