package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question is a multiple-choice item in the question bank.
// Rows are owned by the admin tooling and are read-only to the engine.
type Question struct {
	ID             uint                        `json:"id" gorm:"primaryKey"`
	Text           string                      `json:"text" gorm:"type:text;not null"`
	Choices        datatypes.JSONSlice[string] `json:"choices"`
	CorrectChoices datatypes.JSONSlice[int]    `json:"-"`                                         // Index(es) of the correct choice; never sent to test-takers
	Subcategory    string                      `json:"subcategory" gorm:"size:64;index;not null"` // e.g. rebar, concrete, formwork, element, theory
	Active         bool                        `json:"active" gorm:"index;default:true"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// TableName specifies the table name for the Question model.
func (Question) TableName() string {
	return "questions"
}

// IsCorrect reports whether choice is one of the question's correct choices.
func (q *Question) IsCorrect(choice int) bool {
	for _, c := range q.CorrectChoices {
		if c == choice {
			return true
		}
	}
	return false
}

// ValidChoice reports whether choice indexes one of the question's choices.
func (q *Question) ValidChoice(choice int) bool {
	return choice >= 0 && choice < len(q.Choices)
}

// AssessmentRound is an administratively configured exam definition.
type AssessmentRound struct {
	ID                 uint         `json:"id" gorm:"primaryKey"`
	Title              string       `json:"title" gorm:"not null"`
	TotalQuestionCount int          `json:"total_question_count" gorm:"not null"`
	DurationMinutes    int          `json:"duration_minutes" gorm:"not null"`
	PassingPercentage  *int         `json:"passing_percentage,omitempty"` // nil means the configured default
	StartsAt           *time.Time   `json:"starts_at,omitempty"`
	EndsAt             *time.Time   `json:"ends_at,omitempty"`
	Quotas             []RoundQuota `json:"quotas" gorm:"foreignKey:RoundID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// TableName specifies the table name for the AssessmentRound model.
func (AssessmentRound) TableName() string {
	return "assessment_rounds"
}

// Duration is the time a worker has to finish a session of this round.
func (r *AssessmentRound) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// OpenAt reports whether t falls inside the round's validity window. Missing bounds are open-ended.
func (r *AssessmentRound) OpenAt(t time.Time) bool {
	if r.StartsAt != nil && t.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && t.After(*r.EndsAt) {
		return false
	}
	return true
}

// PassingThreshold returns the round's passing percentage, or fallback when the round has none.
func (r *AssessmentRound) PassingThreshold(fallback int) int {
	if r.PassingPercentage != nil {
		return *r.PassingPercentage
	}
	return fallback
}

// QuotaMap returns subcategory -> quota percentage.
func (r *AssessmentRound) QuotaMap() map[string]float64 {
	quotas := make(map[string]float64, len(r.Quotas))
	for _, q := range r.Quotas {
		quotas[q.Subcategory] += q.Percentage
	}
	return quotas
}
