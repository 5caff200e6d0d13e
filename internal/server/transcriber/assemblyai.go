package transcriber

import (
	"context"
	"errors"

	"github.com/AssemblyAI/assemblyai-go-sdk"
)

type transcriptsAPI interface {
	TranscribeFromURL(ctx context.Context, audioURL string, params *assemblyai.TranscriptOptionalParams) (assemblyai.Transcript, error)
}

// AssemblyAI transcribes through the AssemblyAI API. The SDK submits the job
// and polls until it settles.
type AssemblyAI struct {
	transcripts transcriptsAPI
	model       string
}

func NewAssemblyAI(apiKey, model string) *AssemblyAI {
	client := assemblyai.NewClient(apiKey)
	return &AssemblyAI{transcripts: client.Transcripts, model: model}
}

func (a *AssemblyAI) Transcribe(ctx context.Context, audioURL string) (*Result, error) {
	params := &assemblyai.TranscriptOptionalParams{}
	if a.model != "" {
		params.SpeechModel = assemblyai.SpeechModel(a.model)
	}

	transcript, err := a.transcripts.TranscribeFromURL(ctx, audioURL, params)
	if err != nil {
		return nil, classifyAssemblyAI(err)
	}

	if transcript.Status == assemblyai.TranscriptStatusError {
		reason := deref(transcript.Error)
		if reason != "" {
			reason = "Transcription failed: " + reason
		}
		return nil, &Error{Code: CodeUnknown, Reason: reason}
	}

	return &Result{
		Text:     deref(transcript.Text),
		EngineID: deref(transcript.ID),
	}, nil
}

func classifyAssemblyAI(err error) *Error {
	var apiErr assemblyai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: CodeFromStatus(apiErr.Status), Reason: apiErr.Message, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeUnknown, Reason: "Transcription timed out", Err: err}
	}
	return &Error{Code: CodeUnknown, Reason: err.Error(), Err: err}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
