package repository

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"skillgauge/models"
)

// RoundRepository exposes the read-only round definitions.
type RoundRepository interface {
	GetRound(ctx context.Context, roundID uint) (*models.AssessmentRound, error)
}

type roundRepository struct {
	db *gorm.DB
}

// NewRoundRepository creates a new instance of RoundRepository.
func NewRoundRepository(db *gorm.DB) RoundRepository {
	return &roundRepository{db: db}
}

// GetRound retrieves a round with its quotas. It returns (nil, nil) when the round does not exist.
func (r *roundRepository) GetRound(ctx context.Context, roundID uint) (*models.AssessmentRound, error) {
	var round models.AssessmentRound
	err := r.db.WithContext(ctx).Preload("Quotas").First(&round, roundID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("INFO: [RoundRepository] Round with ID %d not found.", roundID)
			return nil, nil
		}
		log.Printf("ERROR: [RoundRepository] Failed to retrieve round ID %d: %v", roundID, err)
		return nil, fmt.Errorf("failed to retrieve round ID %d: %w", roundID, err)
	}
	return &round, nil
}
