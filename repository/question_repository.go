package repository

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"skillgauge/models"
)

// QuestionRepository exposes the read-only question bank.
type QuestionRepository interface {
	// ListActive returns active questions tagged with one of the given subcategories.
	ListActive(ctx context.Context, subcategories []string) ([]models.Question, error)
	// GetByIDs returns the questions with the given IDs regardless of their active flag.
	GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error)
	// ActiveIDs returns the subset of ids whose questions are currently active.
	ActiveIDs(ctx context.Context, ids []uint) (map[uint]bool, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository creates a new instance of QuestionRepository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) ListActive(ctx context.Context, subcategories []string) ([]models.Question, error) {
	if len(subcategories) == 0 {
		return []models.Question{}, nil
	}
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Where("active = ? AND subcategory IN ?", true, subcategories).
		Order("id asc").
		Find(&questions).Error
	if err != nil {
		log.Printf("ERROR: [QuestionRepository] Failed to list active questions for %v: %v", subcategories, err)
		return nil, fmt.Errorf("failed to list active questions: %w", err)
	}
	log.Printf("INFO: [QuestionRepository] Loaded %d active questions for subcategories %v.", len(questions), subcategories)
	return questions, nil
}

func (r *questionRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return []models.Question{}, nil
	}
	var questions []models.Question
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		log.Printf("ERROR: [QuestionRepository] Failed to load %d questions by ID: %v", len(ids), err)
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	return questions, nil
}

func (r *questionRepository) ActiveIDs(ctx context.Context, ids []uint) (map[uint]bool, error) {
	active := make(map[uint]bool, len(ids))
	if len(ids) == 0 {
		return active, nil
	}
	var found []uint
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("id IN ? AND active = ?", ids, true).
		Pluck("id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check active questions: %w", err)
	}
	for _, id := range found {
		active[id] = true
	}
	return active, nil
}
