package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SCRIBE"

// envBinding parses the raw value itself: viper's typed getters return the
// zero value on malformed input instead of an error.
type envBinding struct {
	key string
	set func(raw string) error
}

func stringEnv(key string, dst *string) envBinding {
	return envBinding{key: key, set: func(raw string) error {
		*dst = raw
		return nil
	}}
}

func durationEnv(key string, dst *time.Duration) envBinding {
	return envBinding{key: key, set: func(raw string) error {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}}
}

func boolEnv(key string, dst *bool) envBinding {
	return envBinding{key: key, set: func(raw string) error {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}}
}

func int64Env(key string, dst *int64) envBinding {
	return envBinding{key: key, set: func(raw string) error {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}}
}

// parseEnv overlays SCRIBE_* environment variables onto config, e.g.
// SCRIBE_DATABASE_DSN or SCRIBE_TRANSCRIPTION_LEASE=2h.
func parseEnv(config *Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	bindings := []envBinding{
		stringEnv("http_addr", &config.HTTPAddr),
		stringEnv("grpc_addr", &config.GRPCAddr),
		stringEnv("database_dsn", &config.DatabaseDSN),
		stringEnv("secret_key", &config.SecretKey),
		durationEnv("token_validity", &config.TokenValidity),
		stringEnv("s3_root_user", &config.S3RootUser),
		stringEnv("s3_root_password", &config.S3RootPassword),
		stringEnv("s3_bucket", &config.S3Bucket),
		stringEnv("s3_region", &config.S3Region),
		stringEnv("s3_base_endpoint", &config.S3BaseEndpoint),
		boolEnv("s3_use_path_style", &config.S3UsePathStyle),
		durationEnv("signed_url_ttl", &config.SignedURLTTL),
		stringEnv("transcription_provider", &config.TranscriptionProvider),
		stringEnv("assemblyai_api_key", &config.AssemblyAIKey),
		stringEnv("assemblyai_model", &config.AssemblyAIModel),
		stringEnv("openai_api_key", &config.OpenAIKey),
		stringEnv("openai_base_url", &config.OpenAIBaseURL),
		stringEnv("openai_model", &config.OpenAIModel),
		durationEnv("transcription_lease", &config.TranscriptionLease),
		stringEnv("reaper_schedule", &config.ReaperSchedule),
		int64Env("max_upload_size", &config.MaxUploadSize),
		stringEnv("log_format", &config.LogFormat),
		stringEnv("log_level", &config.LogLevel),
	}

	for _, b := range bindings {
		if err := v.BindEnv(b.key); err != nil {
			return fmt.Errorf("bind env %s: %w", b.key, err)
		}
		if !v.IsSet(b.key) {
			continue
		}
		if err := b.set(v.GetString(b.key)); err != nil {
			return fmt.Errorf("invalid %s_%s: %w", envPrefix, strings.ToUpper(b.key), err)
		}
	}

	return nil
}
