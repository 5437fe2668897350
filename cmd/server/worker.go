package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/janitor"
	"github.com/youtubelmm/api/internal/logger"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/queue"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/worker"
)

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var queues []string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process pipeline stages from the task queues",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, q := range queues {
				if !slices.Contains(queue.AllQueues, q) {
					return fmt.Errorf("unknown queue %q, expected one of %v", q, queue.AllQueues)
				}
			}
			return runWorker(cmd.Context(), ctx, queues)
		},
	}
	cmd.Flags().StringSliceVar(&queues, "queues", queue.AllQueues, "Queues to consume")
	return cmd
}

func (c *commandContext) concurrency(q string) int {
	switch q {
	case queue.QueueASR:
		return max(c.cfg.Worker.ConcurrencyASR, 1)
	case queue.QueueLLM:
		return max(c.cfg.Worker.ConcurrencyLLM, 1)
	}
	return max(c.cfg.Worker.ConcurrencyDefault, 1)
}

func runWorker(runCtx context.Context, c *commandContext, queues []string) error {
	log := c.log.Logger

	st, err := c.openStore(runCtx)
	if err != nil {
		return err
	}
	rdb := c.redisClient(runCtx)
	progress := service.NewProgressService(rdb, log.Named("progress"))

	asynqClient := asynq.NewClient(c.redisOpt())
	c.onClose(asynqClient.Close)

	parts := c.buildPipeline(service.NewObservedStore(st, progress), c.telegram(), c.r2(), progress)
	if slices.Contains(queues, queue.QueueASR) {
		if err := parts.engine.Preload(); err != nil {
			return fmt.Errorf("whisper init: %w", err)
		}
	}

	stages := worker.NewStageWorker(parts.pipeline, queue.NewDispatcher(asynqClient, c.cfg.MaxVideoSeconds()), log.Named("worker"))
	mux := asynq.NewServeMux()
	stages.Register(mux)

	sweeper := janitor.New(
		pipeline.WorkDir{Root: c.cfg.Pipeline.WorkRoot},
		c.cfg.Janitor.Schedule,
		time.Duration(c.cfg.Janitor.MaxAgeHours)*time.Hour,
		log.Named("janitor"),
	)

	p := pool.New().WithErrors().WithContext(runCtx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		progress.Run(ctx)
		return nil
	})
	p.Go(sweeper.Run)
	for _, q := range queues {
		q := q
		srv := asynq.NewServer(c.redisOpt(), asynq.Config{
			Concurrency:     c.concurrency(q),
			Queues:          map[string]int{q: 1},
			RetryDelayFunc:  queue.RetryDelay,
			Logger:          logger.AsynqLogger{S: c.log.Sugar().Named("asynq")},
			LogLevel:        asynqLevel(c.cfg.Server.LogLevel),
			ShutdownTimeout: 30 * time.Second,
		})
		p.Go(func(ctx context.Context) error {
			if err := srv.Start(mux); err != nil {
				return fmt.Errorf("queue %s: %w", q, err)
			}
			log.Info("Worker started", zap.String("queue", q), zap.Int("concurrency", c.concurrency(q)))
			<-ctx.Done()
			srv.Shutdown()
			return nil
		})
	}
	return p.Wait()
}

func asynqLevel(level string) asynq.LogLevel {
	switch level {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	}
	return asynq.InfoLevel
}
