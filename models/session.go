package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// SessionStatus defines the status of a worker's exam attempt.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"    // Issued and accepting answers
	SessionStatusSubmitted SessionStatus = "submitted" // Scored; the result is final
	SessionStatusExpired   SessionStatus = "expired"   // Timed out before submission; may still be scored once
)

// AssessmentSession is one worker's timed attempt at a round with a fixed question slate.
type AssessmentSession struct {
	ID          string                             `json:"id" gorm:"primaryKey;size:36"`
	WorkerID    string                             `json:"worker_id" gorm:"size:64;index;not null"`
	RoundID     uint                               `json:"round_id" gorm:"index;not null"`
	QuestionIDs datatypes.JSONSlice[uint]          `json:"question_ids"`
	Warnings    datatypes.JSONSlice[PoolShortfall] `json:"warnings,omitempty"`
	Status      SessionStatus                      `json:"status" gorm:"type:varchar(20);index;not null"`
	// ActiveSlot is "<worker>:<round>" while the session is active and NULL afterwards.
	// Its unique index allows at most one active session per worker and round.
	ActiveSlot  *string    `json:"-" gorm:"size:160;uniqueIndex"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for the AssessmentSession model.
func (AssessmentSession) TableName() string {
	return "assessment_sessions"
}

// ActiveSlotKey builds the value stored in ActiveSlot for a worker and round.
func ActiveSlotKey(workerID string, roundID uint) string {
	return fmt.Sprintf("%s:%d", workerID, roundID)
}

// ExpiredAt reports whether the session's time limit has passed at t.
func (s *AssessmentSession) ExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// HasQuestion reports whether questionID is part of the session's slate.
func (s *AssessmentSession) HasQuestion(questionID uint) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// SessionAnswer is a worker's current choice for one question of a session.
type SessionAnswer struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	SessionID   string    `json:"session_id" gorm:"size:36;uniqueIndex:idx_session_question;not null"`
	QuestionID  uint      `json:"question_id" gorm:"uniqueIndex:idx_session_question;not null"`
	ChoiceIndex int       `json:"choice_index" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for the SessionAnswer model.
func (SessionAnswer) TableName() string {
	return "session_answers"
}
