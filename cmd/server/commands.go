package main

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/scribe/internal/server"
	"github.com/dmitrijs2005/scribe/internal/server/auth"
	"github.com/dmitrijs2005/scribe/internal/server/config"
	"github.com/spf13/cobra"
)

const flagsHelp = `Configuration is read from defaults, then the JSON file given with -c/-config,
then SCRIBE_* environment variables, then short flags (-a, -d, -s, ...).`

// Flags belong to the config layer, so commands hand their raw args to
// config.LoadConfig instead of letting cobra parse them.
func newRootCommand(out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:                "scribe",
		Short:              "Folder-organized audio and video transcription service",
		Long:               "scribe stores uploaded media in folders, transcribes it and exports the results.\n\n" + flagsHelp,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args)
		},
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newReapCommand(out))
	rootCmd.AddCommand(newTokenCommand(out))

	return rootCmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "serve",
		Short:              "Run the HTTP API, the gRPC health endpoint and the reaper",
		Long:               flagsHelp,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), args)
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:                "migrate",
		Short:              "Apply database migrations and exit",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), args, func(ctx context.Context, app *server.App) error {
				return app.Migrate(ctx)
			})
		},
	}
}

func newReapCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:                "reap",
		Short:              "Mark transcriptions stuck in processing past the lease as failed",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), args, func(ctx context.Context, app *server.App) error {
				n, err := app.ReapOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d stale transcription(s) marked as error\n", n)
				return nil
			})
		},
	}
}

func newTokenCommand(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:                "token <user-id>",
		Short:              "Mint a bearer token for local use",
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[1:])
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(args[0], []byte(cfg.SecretKey), cfg.TokenValidity)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
}

func runServe(ctx context.Context, args []string) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

func withApp(ctx context.Context, args []string, fn func(context.Context, *server.App) error) error {
	cfg, err := config.LoadConfig(args)
	if err != nil {
		return err
	}
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}
