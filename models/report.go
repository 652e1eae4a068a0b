package models

import (
	"time"

	"gorm.io/datatypes"
)

// BreakdownStatus tells consumers whether a result carries a per-category breakdown.
type BreakdownStatus string

const (
	BreakdownFull        BreakdownStatus = "full"
	BreakdownUnavailable BreakdownStatus = "unavailable" // Session had no questions to group
)

// CategoryStat is the performance of one subcategory within a scored session.
type CategoryStat struct {
	Label      string `json:"label"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// AssessmentResult is the immutable outcome of a scored session.
type AssessmentResult struct {
	ID                   uint                              `json:"-" gorm:"primaryKey"`
	SessionID            string                            `json:"session_id" gorm:"size:36;uniqueIndex;not null"`
	WorkerID             string                            `json:"worker_id" gorm:"size:64;index;not null"`
	RoundID              uint                              `json:"round_id" gorm:"index;not null"`
	Score                int                               `json:"score"` // Count of correct answers
	TotalQuestions       int                               `json:"total_questions"`
	Percentage           int                               `json:"percentage"`
	PassingPercentage    int                               `json:"passing_percentage"`
	Passed               bool                              `json:"passed"`
	BreakdownStatus      BreakdownStatus                   `json:"breakdown_status" gorm:"type:varchar(20);not null"`
	Breakdown            datatypes.JSONSlice[CategoryStat] `json:"breakdown"`
	StrongestArea        string                            `json:"strongest_area,omitempty"`
	WeakestArea          string                            `json:"weakest_area,omitempty"`
	SubmittedAfterExpiry bool                              `json:"submitted_after_expiry"`
	FinishedAt           time.Time                         `json:"finished_at" gorm:"index;not null"`
	CreatedAt            time.Time                         `json:"created_at"`
}

// TableName specifies the table name for the AssessmentResult model.
func (AssessmentResult) TableName() string {
	return "assessment_results"
}
