package api

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"skillgauge/models"
	"skillgauge/services"
)

// Response messages used in the {code, message, data} envelope.
const (
	messageSuccess          = "success"
	messageAlreadyCompleted = "already_completed"
)

// AnswersRequest is the body of PUT /assessment/answers and POST /assessment/submit.
// Answers maps question ID (as a JSON object key) to the chosen choice index.
type AnswersRequest struct {
	SessionID string         `json:"sessionId" binding:"required"`
	WorkerID  string         `json:"workerId"`
	Answers   map[string]int `json:"answers"`
}

// QuestionDTO is a question as shown to a test-taker. It never carries the correct choices.
type QuestionDTO struct {
	ID      uint     `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// RoundDTO describes the round a session belongs to.
type RoundDTO struct {
	ID                uint               `json:"id"`
	Title             string             `json:"title"`
	DurationMinutes   int                `json:"durationMinutes"`
	QuestionCount     int                `json:"questionCount"`
	SubcategoryQuotas map[string]float64 `json:"subcategoryQuotas"`
}

// ShortfallDTO reports a subcategory whose pool could not cover its quota.
type ShortfallDTO struct {
	Subcategory   string `json:"subcategory"`
	Requested     int    `json:"requested"`
	Available     int    `json:"available"`
	Redistributed int    `json:"redistributed"`
}

// SessionResponse is the payload of GET /assessment/session.
type SessionResponse struct {
	SessionID string         `json:"sessionId"`
	WorkerID  string         `json:"workerId"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"createdAt"`
	ExpiresAt string         `json:"expiresAt"`
	Round     RoundDTO       `json:"round"`
	Questions []QuestionDTO  `json:"questions"`
	Warnings  []ShortfallDTO `json:"warnings"`
	// Created is false when the worker resumed an existing session; Answers then holds the saved progress.
	Created bool           `json:"created"`
	Answers map[string]int `json:"answers"`
}

// CategoryDTO is one row of a result breakdown.
type CategoryDTO struct {
	Label      string `json:"label"`
	Correct    int    `json:"correct"`
	Total      int    `json:"total"`
	Percentage int    `json:"percentage"`
}

// ResultResponse is the payload of submit and summary. TotalScore is the score out of 100.
type ResultResponse struct {
	SessionID            string        `json:"sessionId"`
	WorkerID             string        `json:"workerId"`
	RoundID              uint          `json:"roundId"`
	Score                int           `json:"score"`
	TotalScore           int           `json:"totalScore"`
	TotalQuestions       int           `json:"totalQuestions"`
	Percentage           int           `json:"percentage"`
	PassingPercentage    int           `json:"passingPercentage"`
	Passed               bool          `json:"passed"`
	BreakdownStatus      string        `json:"breakdownStatus"`
	Breakdown            []CategoryDTO `json:"breakdown"`
	StrongestArea        string        `json:"strongestArea,omitempty"`
	WeakestArea          string        `json:"weakestArea,omitempty"`
	SubmittedAfterExpiry bool          `json:"submittedAfterExpiry"`
	FinishedAt           string        `json:"finishedAt"`
}

// FeedbackResponse is the payload of GET /assessment/feedback.
type FeedbackResponse struct {
	WorkerID  string `json:"workerId"`
	SessionID string `json:"sessionId"`
	Advice    string `json:"advice"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func newSessionResponse(view *services.SessionView) SessionResponse {
	session := view.Session
	questions := make([]QuestionDTO, 0, len(view.Questions))
	for _, q := range view.Questions {
		choices := []string(q.Choices)
		if choices == nil {
			choices = []string{}
		}
		questions = append(questions, QuestionDTO{ID: q.ID, Text: q.Text, Choices: choices})
	}
	warnings := make([]ShortfallDTO, 0, len(session.Warnings))
	for _, w := range session.Warnings {
		warnings = append(warnings, ShortfallDTO{
			Subcategory:   w.Subcategory,
			Requested:     w.Requested,
			Available:     w.Available,
			Redistributed: w.Redistributed,
		})
	}
	answers := make(map[string]int, len(view.SavedAnswers))
	for questionID, choice := range view.SavedAnswers {
		answers[strconv.FormatUint(uint64(questionID), 10)] = choice
	}
	return SessionResponse{
		SessionID: session.ID,
		WorkerID:  session.WorkerID,
		Status:    string(session.Status),
		CreatedAt: formatTimestamp(session.CreatedAt),
		ExpiresAt: formatTimestamp(session.ExpiresAt),
		Round: RoundDTO{
			ID:                view.Round.ID,
			Title:             view.Round.Title,
			DurationMinutes:   view.Round.DurationMinutes,
			QuestionCount:     view.Round.TotalQuestionCount,
			SubcategoryQuotas: view.Round.QuotaMap(),
		},
		Questions: questions,
		Warnings:  warnings,
		Created:   view.Created,
		Answers:   answers,
	}
}

func newResultResponse(result *models.AssessmentResult) ResultResponse {
	breakdown := make([]CategoryDTO, 0, len(result.Breakdown))
	for _, stat := range result.Breakdown {
		breakdown = append(breakdown, CategoryDTO{
			Label:      stat.Label,
			Correct:    stat.Correct,
			Total:      stat.Total,
			Percentage: stat.Percentage,
		})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Label < breakdown[j].Label })
	return ResultResponse{
		SessionID:            result.SessionID,
		WorkerID:             result.WorkerID,
		RoundID:              result.RoundID,
		Score:                result.Score,
		TotalScore:           result.Percentage,
		TotalQuestions:       result.TotalQuestions,
		Percentage:           result.Percentage,
		PassingPercentage:    result.PassingPercentage,
		Passed:               result.Passed,
		BreakdownStatus:      string(result.BreakdownStatus),
		Breakdown:            breakdown,
		StrongestArea:        result.StrongestArea,
		WeakestArea:          result.WeakestArea,
		SubmittedAfterExpiry: result.SubmittedAfterExpiry,
		FinishedAt:           formatTimestamp(result.FinishedAt),
	}
}

// parseAnswers converts JSON object keys to question IDs.
func parseAnswers(raw map[string]int) (map[uint]int, error) {
	answers := make(map[uint]int, len(raw))
	for key, choice := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: invalid question id %q", services.ErrValidation, key)
		}
		answers[uint(id)] = choice
	}
	return answers, nil
}
