package services

import "errors"

// Error kinds surfaced to the HTTP layer. Wrap them with fmt.Errorf("...: %w", Err...) and test with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrSessionClosed       = errors.New("session is no longer accepting answers")
	ErrRoundClosed         = errors.New("assessment round is not open")
	ErrConcurrencyConflict = errors.New("concurrent update, please retry")
	ErrFeedbackDisabled    = errors.New("feedback provider is not configured")
)
