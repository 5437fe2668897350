package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/youtubelmm/api/internal/client"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ctx.openStore(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func newPreloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preload",
		Short: "Download and warm up the Whisper model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &ctx.cfg.Whisper
			m := client.NewWhisperModel(cfg, ctx.log.Named("asr"))
			path, err := m.Ensure(cmd.Context())
			if err != nil {
				return err
			}
			if err := client.NewWhisperEngine(cfg, m, ctx.log.Named("asr")).Preload(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Model ready at %s\n", path)
			return nil
		},
	}
}
