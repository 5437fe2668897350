package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/validate"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var owner int64

	cmd := &cobra.Command{
		Use:   "run <youtube_url>",
		Short: "Process one video in-process, without the queues",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if !validate.IsYouTubeURL(url) {
				return errors.New("please pass a valid YouTube URL")
			}
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			notifier := ctx.telegram()
			if owner == 0 {
				// no chat to deliver to
				notifier = nil
			}
			parts := ctx.buildPipeline(st, notifier, ctx.r2(), nil)

			task, err := st.Create(cmd.Context(), owner, url)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d created\n", task.ID)

			out, err := parts.pipeline.Run(cmd.Context(), model.Envelope{TaskID: task.ID})
			if err != nil {
				return fmt.Errorf("task %d failed: %w", task.ID, err)
			}
			if out.Skip {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d was not processed, see `tasks show %d`\n", task.ID, task.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d %s\n", task.ID, out.Status)
			return nil
		},
	}
	cmd.Flags().Int64Var(&owner, "owner", 0, "Telegram user id that receives the results")
	return cmd
}
