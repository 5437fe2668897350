package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/youtubelmm/api/internal/bot"
)

func newBotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram long-poll bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			tg := ctx.telegram()
			if tg == nil {
				return errors.New("TELEGRAM_BOT_TOKEN is required")
			}
			tasks, st, err := ctx.taskService(cmd.Context())
			if err != nil {
				return err
			}
			allowed := ctx.cfg.Telegram.AllowedUserIDs()
			if len(allowed) == 0 {
				ctx.log.Warn("ALLOWED_TELEGRAM_USER_IDS is empty, every user will be denied")
			}
			b := bot.New(tg, tasks, st, allowed, ctx.cfg.Pipeline.MaxVideoMinutes, ctx.log.Named("bot"))
			return b.Run(cmd.Context())
		},
	}
}
