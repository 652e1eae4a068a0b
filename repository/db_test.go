package repository

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"skillgauge/database"
	"skillgauge/models"
)

// newTestDB opens a private in-memory SQLite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// newPooledTestDB opens a file-backed SQLite database in WAL mode with several open connections,
// so concurrent callers really race on the unique indexes and conditional updates.
func newPooledTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "contention.db") + "?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(8)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedQuestions(t *testing.T, db *gorm.DB, subcategory string, firstID uint, n int, active bool) []models.Question {
	t.Helper()
	questions := make([]models.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, models.Question{
			ID:             firstID + uint(i),
			Text:           fmt.Sprintf("%s question %d", subcategory, firstID+uint(i)),
			Choices:        []string{"A", "B", "C"},
			CorrectChoices: []int{1},
			Subcategory:    subcategory,
			Active:         true,
		})
	}
	require.NoError(t, db.Create(&questions).Error)
	if !active {
		// The column default is true, so inactive rows are flipped after insert.
		ids := make([]uint, 0, n)
		for _, q := range questions {
			ids = append(ids, q.ID)
		}
		require.NoError(t, db.Model(&models.Question{}).Where("id IN ?", ids).Update("active", false).Error)
	}
	return questions
}

func seedRound(t *testing.T, db *gorm.DB, id uint, quotas map[string]float64) *models.AssessmentRound {
	t.Helper()
	round := &models.AssessmentRound{ID: id, Title: "Structure basics", TotalQuestionCount: 10, DurationMinutes: 60}
	for subcategory, p := range quotas {
		round.Quotas = append(round.Quotas, models.RoundQuota{Subcategory: subcategory, Percentage: p})
	}
	require.NoError(t, db.Create(round).Error)
	return round
}

func newSession(id, workerID string, roundID uint, questionIDs []uint, createdAt time.Time) *models.AssessmentSession {
	return &models.AssessmentSession{
		ID:          id,
		WorkerID:    workerID,
		RoundID:     roundID,
		QuestionIDs: questionIDs,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(time.Hour),
	}
}
