package transcriber

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"

	"github.com/dmitrijs2005/scribe/internal/netx"
	openai "github.com/sashabaranov/go-openai"
)

// whisperMaxBytes is the upload cap of the OpenAI audio endpoint.
const whisperMaxBytes = 25 << 20

type audioAPI interface {
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

// Whisper transcribes through an OpenAI-compatible audio endpoint. Unlike
// AssemblyAI it cannot fetch URLs itself, so the signed URL is downloaded first.
type Whisper struct {
	audio  audioAPI
	model  string
	http   *http.Client
	fetch  func(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error)
	maxLen int64
}

func NewWhisper(apiKey, baseURL, model string) *Whisper {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{
		audio:  openai.NewClientWithConfig(cfg),
		model:  model,
		http:   http.DefaultClient,
		fetch:  netx.FetchPresignedURL,
		maxLen: whisperMaxBytes,
	}
}

func (w *Whisper) Transcribe(ctx context.Context, audioURL string) (*Result, error) {
	data, err := w.fetch(ctx, w.http, audioURL, w.maxLen)
	if err != nil {
		return nil, &Error{Code: CodeBadInput, Reason: err.Error(), Err: err}
	}

	resp, err := w.audio.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: fileNameFromURL(audioURL),
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, classifyOpenAI(err)
	}

	return &Result{Text: resp.Text}, nil
}

func classifyOpenAI(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Code: CodeFromStatus(apiErr.HTTPStatusCode), Reason: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Code: CodeFromStatus(reqErr.HTTPStatusCode), Err: err}
	}
	return &Error{Code: CodeUnknown, Reason: err.Error(), Err: err}
}

// fileNameFromURL keeps the extension of the object name, which the audio
// endpoint uses to detect the container format.
func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "audio"
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return "audio"
	}
	return name
}
