// Package transcriber submits audio references to a speech-to-text engine.
// Calls block until the engine returns text or fails.
package transcriber

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/scribe/internal/common"
)

// Client transcribes the media reachable at audioURL.
type Client interface {
	Transcribe(ctx context.Context, audioURL string) (*Result, error)
}

type Result struct {
	Text string
	// EngineID is the engine's own job id, when it has one.
	EngineID string
}

// Code classifies engine failures.
type Code string

const (
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeRateLimited  Code = "rate_limited"
	CodeBadInput     Code = "bad_input"
	CodeUnknown      Code = "unknown"
)

const fallbackMessage = "Transcription service error"

// Error is an engine failure. It matches common.ErrTranscription.
type Error struct {
	Code   Code
	Reason string
	Err    error
}

// Message is the stable caller-facing text for the failure.
func (e *Error) Message() string {
	switch e.Code {
	case CodeUnauthorized:
		return "Invalid credentials"
	case CodeForbidden:
		return "Insufficient permissions"
	case CodeRateLimited:
		return "Rate limit exceeded"
	case CodeBadInput:
		return "Invalid audio file or URL"
	}
	if e.Reason != "" {
		return e.Reason
	}
	return fallbackMessage
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message(), e.Err)
	}
	return e.Message()
}

func (e *Error) Is(target error) bool {
	return target == common.ErrTranscription
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeFromStatus maps an engine HTTP status to a Code.
func CodeFromStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return CodeBadInput
	default:
		return CodeUnknown
	}
}

// unconfigured fails every call; it stands in when no API key is set so the
// server can still start and serve everything else.
type unconfigured struct{}

func (unconfigured) Transcribe(ctx context.Context, audioURL string) (*Result, error) {
	return nil, &Error{Code: CodeUnknown, Reason: "Transcription service not configured"}
}
