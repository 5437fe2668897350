package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/client"
	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/logger"
	"github.com/youtubelmm/api/internal/queue"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/store"
)

// commandContext holds what every subcommand shares: configuration, the
// process logger and lazily opened connections.
type commandContext struct {
	cfg *config.Config
	log *logger.Logger

	closers []func() error
}

func (c *commandContext) load() error {
	if c.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	c.cfg = cfg
	c.log = log
	return nil
}

func (c *commandContext) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// close runs the registered closers in reverse order, then flushes the logger.
func (c *commandContext) close() {
	if c.log == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.log.Warn("Shutdown step failed", zap.Error(err))
		}
	}
	c.closers = nil
	_ = c.log.Close()
}

func (c *commandContext) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(c.cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	c.onClose(st.Close)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}
	return st, nil
}

func (c *commandContext) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	}
}

func (c *commandContext) redisClient(ctx context.Context) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.Redis.Addr,
		Password: c.cfg.Redis.Password,
		DB:       c.cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		c.log.Warn("Redis not available", zap.Error(err))
	}
	c.onClose(rdb.Close)
	return rdb
}

// taskService builds the submission path: store, asynq client and dispatcher.
func (c *commandContext) taskService(ctx context.Context) (*service.TaskService, *store.Store, error) {
	st, err := c.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	asynqClient := asynq.NewClient(c.redisOpt())
	c.onClose(asynqClient.Close)
	return service.NewTaskService(st, queue.NewDispatcher(asynqClient, c.cfg.MaxVideoSeconds()), c.log.Logger), st, nil
}

// r2 returns the artifact storage, or nil when it is not configured.
func (c *commandContext) r2() *client.R2Client {
	if !c.cfg.R2.Enabled() {
		c.log.Info("R2 storage not configured, artifacts disabled")
		return nil
	}
	r2, err := client.NewR2Client(&c.cfg.R2)
	if err != nil {
		c.log.Warn("R2 client not initialized", zap.Error(err))
		return nil
	}
	return r2
}

// artifactService wraps r2 without turning a nil client into a non-nil interface.
func artifactService(r2 *client.R2Client) *service.ArtifactService {
	if r2 == nil {
		return service.NewArtifactService(nil)
	}
	return service.NewArtifactService(r2)
}

// telegram returns the Bot API client, or nil without a token.
func (c *commandContext) telegram() *client.TelegramClient {
	if c.cfg.Telegram.BotToken == "" {
		return nil
	}
	tg := client.NewTelegramClient(&c.cfg.Telegram)
	c.onClose(tg.Close)
	return tg
}
