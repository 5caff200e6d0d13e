package config

import (
	"flag"
	"io"
	"strings"
	"time"
)

// filterArgs returns only the allowed flags (and their values) from args.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      -config=conf.json
func filterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			// a following non-flag argument is this flag's value
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

var shortFlags = []string{"-a", "-r", "-d", "-s", "-t", "-u", "-p", "-b", "-g", "-e", "-n", "-k", "-o", "-l", "-f", "-m"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-r string   gRPC health bind address
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      token validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-n string   transcription provider (assemblyai, whisper)
//	-k string   AssemblyAI API key
//	-o string   OpenAI API key
//	-m int      max upload size, MiB
//	-l string   log level
//	-f string   log format (json, text, console)
//
// Flags not in the list are ignored so the same args can carry
// the -c config file path and subcommand arguments.
func parseFlags(config *Config, args []string) error {
	args = filterArgs(args, shortFlags)

	fs := flag.NewFlagSet("scribe", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "r", config.GRPCAddr, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidity.Minutes()), "token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.TranscriptionProvider, "n", config.TranscriptionProvider, "transcription provider")
	fs.StringVar(&config.AssemblyAIKey, "k", config.AssemblyAIKey, "AssemblyAI API key")
	fs.StringVar(&config.OpenAIKey, "o", config.OpenAIKey, "OpenAI API key")

	maxUpload := fs.Int64("m", config.MaxUploadSize>>20, "max upload size (in MiB)")

	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.TokenValidity = time.Duration(*tokenValidity) * time.Minute
	config.MaxUploadSize = *maxUpload << 20
	return nil
}
