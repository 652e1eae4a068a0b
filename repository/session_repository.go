package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"skillgauge/models"
)

var (
	// ErrConflict means a concurrent request changed the session first; re-read to converge.
	ErrConflict = errors.New("concurrent session modification")
	// ErrSessionNotFound is returned by operations that need an existing session row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionNotActive is returned when answers are written to a session that stopped accepting them.
	ErrSessionNotActive = errors.New("session is not active")
)

// ScoreFunc builds the result for a session inside the completion transaction.
// storedAnswers holds the answers saved progressively before submission.
type ScoreFunc func(session *models.AssessmentSession, storedAnswers map[uint]int) (*models.AssessmentResult, error)

// SessionRepository is the durable store of issued sessions, their answers and results.
type SessionRepository interface {
	// CreateActiveSession inserts session unless the worker already holds an active session for the round,
	// in which case the existing one is returned with created=false.
	CreateActiveSession(ctx context.Context, session *models.AssessmentSession) (stored *models.AssessmentSession, created bool, err error)
	FindActiveSession(ctx context.Context, workerID string, roundID uint) (*models.AssessmentSession, error)
	GetSession(ctx context.Context, sessionID string) (*models.AssessmentSession, error)
	// MarkExpired flips an active session past its deadline to expired. It reports whether a row changed.
	MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error)
	UpsertAnswers(ctx context.Context, sessionID string, answers map[uint]int) error
	GetAnswers(ctx context.Context, sessionID string) (map[uint]int, error)
	// CompleteSession scores and submits a session in one transaction.
	// alreadyCompleted is true when the session had been submitted before; the stored result is returned.
	CompleteSession(ctx context.Context, sessionID string, now time.Time, score ScoreFunc) (result *models.AssessmentResult, alreadyCompleted bool, err error)
	GetResultBySession(ctx context.Context, sessionID string) (*models.AssessmentResult, error)
	GetLatestResult(ctx context.Context, workerID string) (*models.AssessmentResult, error)
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new instance of SessionRepository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) CreateActiveSession(ctx context.Context, session *models.AssessmentSession) (*models.AssessmentSession, bool, error) {
	if session == nil || session.ID == "" || session.WorkerID == "" {
		return nil, false, errors.New("session ID and worker ID are required")
	}
	slot := models.ActiveSlotKey(session.WorkerID, session.RoundID)
	session.ActiveSlot = &slot
	session.Status = models.SessionStatusActive

	// Insert-or-fetch: the unique active_slot index rejects a second active session for the pair.
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(session)
	if res.Error != nil {
		log.Printf("ERROR: [SessionRepository] Failed to create session for worker '%s', round %d: %v", session.WorkerID, session.RoundID, res.Error)
		return nil, false, fmt.Errorf("failed to create session: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		log.Printf("INFO: [SessionRepository] Created session %s: WorkerID=%s, RoundID=%d, Questions=%d", session.ID, session.WorkerID, session.RoundID, len(session.QuestionIDs))
		return session, true, nil
	}

	existing, err := r.FindActiveSession(ctx, session.WorkerID, session.RoundID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The winner was already expired or submitted by the time we looked.
		log.Printf("WARN: [SessionRepository] Insert for slot '%s' was skipped but no active session is visible.", slot)
		return nil, false, ErrConflict
	}
	log.Printf("INFO: [SessionRepository] Slot '%s' already held by session %s; returning it.", slot, existing.ID)
	return existing, false, nil
}

// FindActiveSession returns (nil, nil) when the worker holds no active session for the round.
func (r *sessionRepository) FindActiveSession(ctx context.Context, workerID string, roundID uint) (*models.AssessmentSession, error) {
	var session models.AssessmentSession
	err := r.db.WithContext(ctx).First(&session, "active_slot = ?", models.ActiveSlotKey(workerID, roundID)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		log.Printf("ERROR: [SessionRepository] Failed to look up active session for worker '%s', round %d: %v", workerID, roundID, err)
		return nil, fmt.Errorf("failed to look up active session: %w", err)
	}
	return &session, nil
}

// GetSession returns (nil, nil) when no session has the given ID.
func (r *sessionRepository) GetSession(ctx context.Context, sessionID string) (*models.AssessmentSession, error) {
	var session models.AssessmentSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("INFO: [SessionRepository] Session %s not found.", sessionID)
			return nil, nil
		}
		log.Printf("ERROR: [SessionRepository] Failed to retrieve session %s: %v", sessionID, err)
		return nil, fmt.Errorf("failed to retrieve session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (r *sessionRepository) MarkExpired(ctx context.Context, sessionID string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.AssessmentSession{}).
		Where("id = ? AND status = ? AND expires_at < ?", sessionID, models.SessionStatusActive, now).
		Updates(map[string]interface{}{
			"status":      models.SessionStatusExpired,
			"active_slot": nil,
		})
	if res.Error != nil {
		log.Printf("ERROR: [SessionRepository] Failed to expire session %s: %v", sessionID, res.Error)
		return false, fmt.Errorf("failed to expire session %s: %w", sessionID, res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("INFO: [SessionRepository] Session %s expired.", sessionID)
	}
	return res.RowsAffected > 0, nil
}

func (r *sessionRepository) UpsertAnswers(ctx context.Context, sessionID string, answers map[uint]int) error {
	if len(answers) == 0 {
		return nil
	}
	rows := make([]models.SessionAnswer, 0, len(answers))
	for questionID, choice := range answers {
		rows = append(rows, models.SessionAnswer{SessionID: sessionID, QuestionID: questionID, ChoiceIndex: choice})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionID < rows[j].QuestionID })

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.AssessmentSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
		}
		if session.Status != models.SessionStatusActive {
			return ErrSessionNotActive
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"choice_index", "updated_at"}),
		}).Create(&rows).Error
		if err != nil {
			log.Printf("ERROR: [SessionRepository] Failed to save %d answers for session %s: %v", len(rows), sessionID, err)
			return fmt.Errorf("failed to save answers for session %s: %w", sessionID, err)
		}
		log.Printf("INFO: [SessionRepository] Saved %d answers for session %s.", len(rows), sessionID)
		return nil
	})
}

func (r *sessionRepository) GetAnswers(ctx context.Context, sessionID string) (map[uint]int, error) {
	return loadAnswers(r.db.WithContext(ctx), sessionID)
}

func loadAnswers(db *gorm.DB, sessionID string) (map[uint]int, error) {
	var rows []models.SessionAnswer
	if err := db.Where("session_id = ?", sessionID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load answers for session %s: %w", sessionID, err)
	}
	answers := make(map[uint]int, len(rows))
	for _, row := range rows {
		answers[row.QuestionID] = row.ChoiceIndex
	}
	return answers, nil
}

func (r *sessionRepository) CompleteSession(ctx context.Context, sessionID string, now time.Time, score ScoreFunc) (*models.AssessmentResult, bool, error) {
	var result *models.AssessmentResult
	alreadyCompleted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session models.AssessmentSession
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to lock session %s: %w", sessionID, err)
		}

		if session.Status == models.SessionStatusSubmitted {
			existing, err := findResult(tx, sessionID)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("session %s is submitted but has no stored result", sessionID)
			}
			result, alreadyCompleted = existing, true
			return nil
		}

		stored, err := loadAnswers(tx, sessionID)
		if err != nil {
			return err
		}
		scored, err := score(&session, stored)
		if err != nil {
			return err
		}

		res := tx.Model(&models.AssessmentSession{}).
			Where("id = ? AND status IN ?", sessionID, []models.SessionStatus{models.SessionStatusActive, models.SessionStatusExpired}).
			Updates(map[string]interface{}{
				"status":       models.SessionStatusSubmitted,
				"active_slot":  nil,
				"submitted_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark session %s submitted: %w", sessionID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		if err := tx.Create(scored).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConflict
			}
			return fmt.Errorf("failed to store result for session %s: %w", sessionID, err)
		}
		result = scored
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrSessionNotFound) {
			log.Printf("ERROR: [SessionRepository] CompleteSession failed for session %s: %v", sessionID, err)
		}
		return nil, false, err
	}

	if alreadyCompleted {
		log.Printf("INFO: [SessionRepository] Session %s was already submitted; returning stored result.", sessionID)
	} else {
		log.Printf("INFO: [SessionRepository] Session %s submitted: score %d/%d.", sessionID, result.Score, result.TotalQuestions)
	}
	return result, alreadyCompleted, nil
}

// GetResultBySession returns (nil, nil) when the session has no result yet.
func (r *sessionRepository) GetResultBySession(ctx context.Context, sessionID string) (*models.AssessmentResult, error) {
	return findResult(r.db.WithContext(ctx), sessionID)
}

func findResult(db *gorm.DB, sessionID string) (*models.AssessmentResult, error) {
	var result models.AssessmentResult
	err := db.First(&result, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to retrieve result for session %s: %w", sessionID, err)
	}
	return &result, nil
}

// GetLatestResult returns the worker's most recent result, or (nil, nil) if there is none.
func (r *sessionRepository) GetLatestResult(ctx context.Context, workerID string) (*models.AssessmentResult, error) {
	var result models.AssessmentResult
	err := r.db.WithContext(ctx).
		Where("worker_id = ?", workerID).
		Order("finished_at desc, id desc").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("INFO: [SessionRepository] No results found for worker '%s'.", workerID)
			return nil, nil
		}
		log.Printf("ERROR: [SessionRepository] Failed to retrieve latest result for worker '%s': %v", workerID, err)
		return nil, fmt.Errorf("failed to retrieve latest result for worker %s: %w", workerID, err)
	}
	return &result, nil
}
