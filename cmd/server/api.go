package main

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/auth"
	"github.com/youtubelmm/api/internal/handler"
	"github.com/youtubelmm/api/internal/middleware"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/validate"
	ws "github.com/youtubelmm/api/internal/websocket"
)

func newAPICommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAPI(cmd.Context(), ctx)
		},
	}
}

func runAPI(runCtx context.Context, c *commandContext) error {
	cfg := c.cfg
	log := c.log.Logger

	rdb := c.redisClient(runCtx)
	tasks, st, err := c.taskService(runCtx)
	if err != nil {
		return err
	}
	progress := service.NewProgressService(rdb, log.Named("progress"))
	artifacts := artifactService(c.r2())

	hub := ws.NewHub(log.Named("ws"))
	go hub.Run(runCtx)
	go func() {
		err := progress.Subscribe(runCtx, hub.BroadcastProgress, func(ev model.StatusEvent) {
			hub.BroadcastStatus(ev.TaskID, ev.Status, ev.Error)
		})
		if err != nil {
			log.Warn("Progress subscription ended", zap.Error(err))
		}
	}()

	var apiAuth fiber.Handler
	var authVerify *handler.AuthHandler
	if cfg.JWT.Secret != "" {
		verifier := auth.NewHMACVerifier(cfg.JWT.Secret)
		apiAuth = middleware.NewAuthMiddleware(verifier).Authenticate()
		authVerify = handler.NewAuthHandler(verifier)
	} else {
		// Behind a gateway: identity arrives in X-Owner-Id
		log.Info("JWT secret not set, using gateway header auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	}
	limiter := middleware.NewRateLimiter(rdb, log.Named("ratelimit"))

	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"database": func(ctx context.Context) error {
			sqlDB, err := st.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}, map[string]bool{
		"telegram":  cfg.Telegram.BotToken != "",
		"openai":    cfg.OpenAI.APIKey != "",
		"artifacts": artifacts.Enabled(),
		"jwt":       cfg.JWT.Secret != "",
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{Format: logFormat}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.Routes{
		Auth:       apiAuth,
		TaskLimit:  limiter.TaskLimit(cfg.RateLimit.TasksPerHour),
		Tasks:      handler.NewTaskHandler(tasks, progress, artifacts, validate.New()),
		Health:     health,
		AuthVerify: authVerify,
		Hub:        hub,
	}.Register(app)

	go func() {
		<-runCtx.Done()
		log.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("Server shutdown error", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("Server starting", zap.String("addr", addr), zap.String("env", cfg.Server.Env))
	return app.Listen(addr)
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
