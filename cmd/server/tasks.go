package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/store"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	tasksCmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and manage tasks",
	}
	tasksCmd.AddCommand(newTasksListCommand(ctx))
	tasksCmd.AddCommand(newTasksShowCommand(ctx))
	tasksCmd.AddCommand(newTasksDeleteCommand(ctx))
	return tasksCmd
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var owner int64
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := store.ListFilter{Status: model.TaskStatus(status), OwnerID: owner, Limit: limit}
			if status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := st.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
				return nil
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, taskRow(t))
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Owner", "Status", "Duration", "Lang", "Updated", "URL"}, rows, 1, 2, 4))
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only tasks with this status")
	cmd.Flags().Int64Var(&owner, "owner", 0, "Only tasks of this owner")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of tasks")
	return cmd
}

func taskRow(t model.Task) []string {
	duration, lang := "-", "-"
	if t.DurationSec != nil {
		duration = (time.Duration(*t.DurationSec) * time.Second).String()
	}
	if t.Language != nil {
		lang = *t.Language
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		strconv.FormatInt(t.OwnerID, 10),
		string(t.Status),
		duration,
		lang,
		t.UpdatedAt.Local().Format("2006-01-02 15:04"),
		t.SourceURL,
	}
}

func newTasksShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task_id>",
		Short: "Show a task and its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			task, err := st.GetWithResult(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, taskDetails(task)))
			if task.Result == nil {
				return nil
			}
			fmt.Fprintf(out, "\nSummary\n-------\n%s\n\nOutline\n-------\n%s\n", task.Result.Summary, task.Result.Outline)
			return nil
		},
	}
}

func taskDetails(t *model.Task) [][]string {
	row := taskRow(*t)
	details := [][]string{
		{"ID", row[0]},
		{"Owner", row[1]},
		{"Status", row[2]},
		{"Duration", row[3]},
		{"Language", row[4]},
		{"Created", t.CreatedAt.Local().Format(time.RFC3339)},
		{"Updated", t.UpdatedAt.Local().Format(time.RFC3339)},
		{"URL", t.SourceURL},
	}
	if t.Error != nil {
		details = append(details, []string{"Error", *t.Error})
	}
	return details
}

func newTasksDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task_id>",
		Short: "Delete a task, its result and archived artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			st, err := ctx.openStore(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.Delete(cmd.Context(), id); err != nil {
				return err
			}
			removed, err := artifactService(ctx.r2()).Purge(cmd.Context(), id)
			if err != nil {
				ctx.log.Warn("Artifact cleanup failed", zap.Int64("task_id", id), zap.Error(err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d (%d artifacts removed)\n", id, removed)
			return nil
		},
	}
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("task_id must be a positive integer")
	}
	return id, nil
}
