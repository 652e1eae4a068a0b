package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"skillgauge/middleware"
	"skillgauge/services"
	"skillgauge/utils"
)

// APIHandler holds all dependencies for API handlers.
type APIHandler struct {
	sessionService  services.SessionManager
	scoringService  services.ScoringEngine
	feedbackService services.FeedbackService
	db              *gorm.DB
}

// NewAPIHandler creates a new APIHandler with necessary dependencies.
func NewAPIHandler(
	sessionService services.SessionManager,
	scoringService services.ScoringEngine,
	feedbackService services.FeedbackService,
	db *gorm.DB,
) *APIHandler {
	return &APIHandler{
		sessionService:  sessionService,
		scoringService:  scoringService,
		feedbackService: feedbackService,
		db:              db,
	}
}

// RegisterRoutes mounts the assessment endpoints on r. guards run before every /assessment handler.
func (h *APIHandler) RegisterRoutes(r gin.IRouter, guards ...gin.HandlerFunc) {
	r.GET("/healthz", h.HealthHandler)

	assessment := r.Group("/assessment", guards...)
	{
		assessment.GET("/session", h.GetSessionHandler)
		assessment.PUT("/answers", h.SaveAnswersHandler)
		assessment.POST("/submit", h.SubmitHandler)
		assessment.GET("/summary", h.SummaryHandler)
		assessment.GET("/feedback", h.FeedbackHandler)
	}
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

// GetSessionHandler returns the worker's live session for a round, issuing one if needed.
func (h *APIHandler) GetSessionHandler(c *gin.Context) {
	roundParam := c.Query("round")
	roundID, err := strconv.ParseUint(roundParam, 10, 64)
	if err != nil || roundID == 0 {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid round ID", err, "round must be a positive integer")
		return
	}
	workerID, ok := resolveWorker(c, c.Query("worker"))
	if !ok {
		return
	}

	view, err := h.sessionService.GetOrCreateSession(c.Request.Context(), workerID, uint(roundID))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	success(c, messageSuccess, newSessionResponse(view))
}

// SaveAnswersHandler stores progress for an active session.
func (h *APIHandler) SaveAnswersHandler(c *gin.Context) {
	var req AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	workerID, ok := resolveWorker(c, req.WorkerID)
	if !ok {
		return
	}
	answers, err := parseAnswers(req.Answers)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	saved, err := h.sessionService.SaveAnswers(c.Request.Context(), req.SessionID, workerID, answers)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	success(c, messageSuccess, gin.H{"sessionId": req.SessionID, "saved": saved})
}

// SubmitHandler scores a session. Repeated calls return the stored result with message "already_completed".
func (h *APIHandler) SubmitHandler(c *gin.Context) {
	var req AnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}
	workerID, ok := resolveWorker(c, req.WorkerID)
	if !ok {
		return
	}
	answers, err := parseAnswers(req.Answers)
	if err != nil {
		handleServiceError(c, err)
		return
	}

	outcome, err := h.scoringService.Submit(c.Request.Context(), req.SessionID, workerID, answers)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	message := messageSuccess
	if outcome.AlreadyCompleted {
		message = messageAlreadyCompleted
	}
	success(c, message, newResultResponse(outcome.Result))
}

// SummaryHandler returns the worker's latest result.
func (h *APIHandler) SummaryHandler(c *gin.Context) {
	workerID, ok := resolveWorker(c, c.Query("workerId"))
	if !ok {
		return
	}
	result, err := h.scoringService.LatestResult(c.Request.Context(), workerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	success(c, messageSuccess, newResultResponse(result))
}

// FeedbackHandler asks the feedback provider for study advice on the worker's latest result.
func (h *APIHandler) FeedbackHandler(c *gin.Context) {
	if h.feedbackService == nil || !h.feedbackService.Enabled() {
		handleServiceError(c, services.ErrFeedbackDisabled)
		return
	}
	workerID, ok := resolveWorker(c, c.Query("workerId"))
	if !ok {
		return
	}
	result, err := h.scoringService.LatestResult(c.Request.Context(), workerID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	advice, err := h.feedbackService.Coach(c.Request.Context(), result)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	success(c, messageSuccess, FeedbackResponse{WorkerID: workerID, SessionID: result.SessionID, Advice: advice})
}

// HealthHandler reports whether the database is reachable.
func (h *APIHandler) HealthHandler(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			utils.SendJSONError(c, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// resolveWorker reconciles the requested worker with the authenticated one, if any.
// It writes the error response itself and reports false when the request must stop.
func resolveWorker(c *gin.Context, requested string) (string, bool) {
	authenticated := middleware.WorkerIDFromContext(c)
	switch {
	case authenticated != "" && requested != "" && requested != authenticated:
		utils.SendJSONError(c, http.StatusForbidden, "Worker mismatch", nil, "token subject does not match the requested worker")
		return "", false
	case requested == "" && authenticated == "":
		utils.SendJSONError(c, http.StatusBadRequest, "Worker ID is required", nil)
		return "", false
	case requested == "":
		return authenticated, true
	}
	return requested, true
}

// handleServiceError maps service errors to HTTP status codes.
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		utils.SendJSONError(c, http.StatusBadRequest, "Invalid request", nil, err.Error())
	case errors.Is(err, services.ErrNotFound):
		utils.SendJSONError(c, http.StatusNotFound, "Not found", nil, err.Error())
	case errors.Is(err, services.ErrForbidden):
		utils.SendJSONError(c, http.StatusForbidden, "Forbidden", nil, err.Error())
	case errors.Is(err, services.ErrSessionClosed), errors.Is(err, services.ErrRoundClosed):
		utils.SendJSONError(c, http.StatusConflict, "Conflict", nil, err.Error())
	case errors.Is(err, services.ErrConcurrencyConflict):
		c.Header("Retry-After", "1")
		utils.SendJSONError(c, http.StatusServiceUnavailable, "Please retry", err)
	case errors.Is(err, services.ErrFeedbackDisabled):
		utils.SendJSONError(c, http.StatusServiceUnavailable, "Feedback is not available", err)
	default:
		log.Printf("ERROR: [API] Unhandled service error on %s: %v", c.Request.URL.Path, err)
		utils.SendJSONError(c, http.StatusInternalServerError, "", err)
	}
}
