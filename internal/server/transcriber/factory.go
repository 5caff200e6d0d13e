package transcriber

import (
	"fmt"
	"strings"
)

const (
	ProviderAssemblyAI = "assemblyai"
	ProviderWhisper    = "whisper"
)

type Config struct {
	Provider string

	AssemblyAIKey   string
	AssemblyAIModel string

	OpenAIKey     string
	OpenAIBaseURL string
	OpenAIModel   string
}

// New builds the client for cfg.Provider. A provider without an API key gets
// a client that fails every call with a "not configured" error.
func New(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderAssemblyAI:
		if cfg.AssemblyAIKey == "" {
			return unconfigured{}, nil
		}
		return NewAssemblyAI(cfg.AssemblyAIKey, cfg.AssemblyAIModel), nil
	case ProviderWhisper:
		if cfg.OpenAIKey == "" {
			return unconfigured{}, nil
		}
		return NewWhisper(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Provider)
	}
}
