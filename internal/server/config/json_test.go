package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"http_addr":              "www.example:8000",
		"grpc_addr":              "www.example:9000",
		"database_dsn":           "scribe-db",
		"secret_key":             "my_secret_key",
		"token_validity":         "1m",
		"s3_root_user":           "user",
		"s3_root_password":       "password",
		"s3_bucket":              "bucket",
		"s3_region":              "region",
		"s3_base_endpoint":       "base_endpoint",
		"s3_use_path_style":      false,
		"signed_url_ttl":         int64(30 * time.Minute),
		"transcription_provider": "whisper",
		"openai_api_key":         "sk-test",
		"openai_model":           "whisper-1",
		"transcription_lease":    "2h",
		"reaper_schedule":        "@every 1m",
		"max_upload_size":        1024,
		"log_format":             "console",
		"log_level":              "debug",
	})

	t.Run("loads from json", func(t *testing.T) {
		cfg := &Config{S3UsePathStyle: true}
		require.NoError(t, parseJson(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, "www.example:8000", cfg.HTTPAddr)
		assert.Equal(t, "www.example:9000", cfg.GRPCAddr)
		assert.Equal(t, "scribe-db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, time.Minute, cfg.TokenValidity)
		assert.Equal(t, "user", cfg.S3RootUser)
		assert.Equal(t, "password", cfg.S3RootPassword)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "region", cfg.S3Region)
		assert.Equal(t, "base_endpoint", cfg.S3BaseEndpoint)
		assert.False(t, cfg.S3UsePathStyle)
		assert.Equal(t, 30*time.Minute, cfg.SignedURLTTL)
		assert.Equal(t, "whisper", cfg.TranscriptionProvider)
		assert.Equal(t, "sk-test", cfg.OpenAIKey)
		assert.Equal(t, "whisper-1", cfg.OpenAIModel)
		assert.Equal(t, 2*time.Hour, cfg.TranscriptionLease)
		assert.Equal(t, "@every 1m", cfg.ReaperSchedule)
		assert.Equal(t, int64(1024), cfg.MaxUploadSize)
		assert.Equal(t, "console", cfg.LogFormat)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("short flag with equals", func(t *testing.T) {
		cfg := &Config{}
		require.NoError(t, parseJson(cfg, []string{"-c=" + pathFlag}))
		assert.Equal(t, "www.example:8000", cfg.HTTPAddr)
	})

	t.Run("no config flag → no changes", func(t *testing.T) {
		cfg := &Config{
			HTTPAddr:      "defaults:1234",
			DatabaseDSN:   "scribe.db",
			TokenValidity: 2 * time.Minute,
		}
		require.NoError(t, parseJson(cfg, []string{"serve"}))

		assert.Equal(t, "defaults:1234", cfg.HTTPAddr)
		assert.Equal(t, "scribe.db", cfg.DatabaseDSN)
		assert.Equal(t, 2*time.Minute, cfg.TokenValidity)
	})

	t.Run("partial file keeps other values", func(t *testing.T) {
		partial := writeTempJSON(t, dir, "partial.json", map[string]any{"s3_bucket": "other"})
		cfg := &Config{S3Bucket: "scribe", S3Region: "us-east-1"}
		require.NoError(t, parseJson(cfg, []string{"-c", partial}))

		assert.Equal(t, "other", cfg.S3Bucket)
		assert.Equal(t, "us-east-1", cfg.S3Region)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := &Config{}
		require.Error(t, parseJson(cfg, []string{"-config", bad}))
	})

	t.Run("invalid duration → error", func(t *testing.T) {
		bad := writeTempJSON(t, dir, "baddur.json", map[string]any{"signed_url_ttl": true})
		cfg := &Config{}
		require.Error(t, parseJson(cfg, []string{"-c", bad}))
	})
}

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"separate value", []string{"serve", "-c", "a.json", "-x"}, []string{"-c", "a.json"}},
		{"equals form", []string{"-config=a.json", "-d", "dsn"}, []string{"-config=a.json"}},
		{"flag followed by flag", []string{"-c", "-d"}, []string{"-c"}},
		{"nothing allowed", []string{"x", "y"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterArgs(tt.args, []string{"-c", "-config"}))
		})
	}
}
