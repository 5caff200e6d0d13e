package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

// Duration unmarshals from either a duration string such as "90m"
// or an integer number of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		return err
	default:
		return errors.New("invalid duration")
	}
}

// JsonConfig is the on-disk shape of the configuration file. Fields left out
// of the file keep the value they had before the overlay.
type JsonConfig struct {
	HTTPAddr      string   `json:"http_addr"`
	GRPCAddr      string   `json:"grpc_addr"`
	DatabaseDSN   string   `json:"database_dsn"`
	SecretKey     string   `json:"secret_key"`
	TokenValidity Duration `json:"token_validity"`

	S3RootUser     string   `json:"s3_root_user"`
	S3RootPassword string   `json:"s3_root_password"`
	S3Bucket       string   `json:"s3_bucket"`
	S3Region       string   `json:"s3_region"`
	S3BaseEndpoint string   `json:"s3_base_endpoint"`
	S3UsePathStyle *bool    `json:"s3_use_path_style"`
	SignedURLTTL   Duration `json:"signed_url_ttl"`

	TranscriptionProvider string   `json:"transcription_provider"`
	AssemblyAIKey         string   `json:"assemblyai_api_key"`
	AssemblyAIModel       string   `json:"assemblyai_model"`
	OpenAIKey             string   `json:"openai_api_key"`
	OpenAIBaseURL         string   `json:"openai_base_url"`
	OpenAIModel           string   `json:"openai_model"`
	TranscriptionLease    Duration `json:"transcription_lease"`
	ReaperSchedule        string   `json:"reaper_schedule"`

	MaxUploadSize int64 `json:"max_upload_size"`

	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// configFileFlag extracts the config file path given via -c or -config.
// An empty string means no file was requested.
func configFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "Path to config file")
	fs.StringVar(&path, "c", "", "Path to config file (short)")
	_ = fs.Parse(filterArgs(args, []string{"-c", "-config"}))

	return path
}

// parseJson overlays values from the JSON file named by -c/-config onto config.
func parseJson(config *Config, args []string) error {
	path := configFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidity, c.TokenValidity)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.S3UsePathStyle != nil {
		config.S3UsePathStyle = *c.S3UsePathStyle
	}
	setDuration(&config.SignedURLTTL, c.SignedURLTTL)
	setString(&config.TranscriptionProvider, c.TranscriptionProvider)
	setString(&config.AssemblyAIKey, c.AssemblyAIKey)
	setString(&config.AssemblyAIModel, c.AssemblyAIModel)
	setString(&config.OpenAIKey, c.OpenAIKey)
	setString(&config.OpenAIBaseURL, c.OpenAIBaseURL)
	setString(&config.OpenAIModel, c.OpenAIModel)
	setDuration(&config.TranscriptionLease, c.TranscriptionLease)
	setString(&config.ReaperSchedule, c.ReaperSchedule)
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)

	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
