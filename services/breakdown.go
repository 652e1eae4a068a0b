package services

import (
	"math"
	"sort"

	"skillgauge/models"
)

// ScoredAnswer is the outcome of one session question after scoring.
type ScoredAnswer struct {
	QuestionID uint
	Answered   bool
	Correct    bool
}

// BreakdownAnalyzer groups scored answers by subcategory.
type BreakdownAnalyzer interface {
	Analyze(scored []ScoredAnswer, subcategories map[uint]string) []models.CategoryStat
}

type breakdownAnalyzer struct{}

// NewBreakdownAnalyzer creates a new instance of BreakdownAnalyzer.
func NewBreakdownAnalyzer() BreakdownAnalyzer {
	return breakdownAnalyzer{}
}

// Analyze returns one stat per subcategory that has at least one question, ordered by label.
func (breakdownAnalyzer) Analyze(scored []ScoredAnswer, subcategories map[uint]string) []models.CategoryStat {
	groups := make(map[string]*models.CategoryStat)
	for _, answer := range scored {
		label, ok := subcategories[answer.QuestionID]
		if !ok {
			continue
		}
		stat, exists := groups[label]
		if !exists {
			stat = &models.CategoryStat{Label: label}
			groups[label] = stat
		}
		stat.Total++
		if answer.Correct {
			stat.Correct++
		}
	}

	stats := make([]models.CategoryStat, 0, len(groups))
	for _, stat := range groups {
		stat.Percentage = percentOf(stat.Correct, stat.Total)
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Label < stats[j].Label })
	return stats
}

// StrongestArea returns the label with the highest percentage, ties broken by label.
func StrongestArea(stats []models.CategoryStat) string {
	best := -1
	for i := range stats {
		if best < 0 || stats[i].Percentage > stats[best].Percentage {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return stats[best].Label
}

// WeakestArea returns the label with the lowest percentage, ties broken by label.
func WeakestArea(stats []models.CategoryStat) string {
	worst := -1
	for i := range stats {
		if worst < 0 || stats[i].Percentage < stats[worst].Percentage {
			worst = i
		}
	}
	if worst < 0 {
		return ""
	}
	return stats[worst].Label
}

// percentOf is round(part / total * 100), 0 for an empty total.
func percentOf(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}
