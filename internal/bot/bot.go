// Package bot is the Telegram long-poll ingress: it accepts YouTube links from
// whitelisted users and answers status queries.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/youtubelmm/api/internal/client"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
	"github.com/youtubelmm/api/internal/service"
	"github.com/youtubelmm/api/internal/store"
)

const (
	statusCallbackPrefix = "status:"
	pollRetryDelay       = 3 * time.Second
)

// Messenger is the Telegram Bot API surface the bot uses.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendTextWithButtons(ctx context.Context, chatID int64, text string, buttons ...client.InlineButton) error
	SendFile(ctx context.Context, chatID int64, doc model.Document) error
	GetUpdates(ctx context.Context, offset int64) ([]client.TelegramUpdate, error)
	AnswerCallbackQuery(ctx context.Context, id string) error
}

// Submitter accepts a new task.
type Submitter interface {
	Submit(ctx context.Context, ownerID int64, url string) (*model.CreateTaskResponse, error)
}

// TaskReader loads a task with its result.
type TaskReader interface {
	GetWithResult(ctx context.Context, id int64) (*model.Task, error)
}

type Bot struct {
	api             Messenger
	tasks           Submitter
	reader          TaskReader
	allowed         map[int64]bool
	maxVideoMinutes int
	log             *zap.Logger
}

func New(api Messenger, tasks Submitter, reader TaskReader, allowed map[int64]bool, maxVideoMinutes int, log *zap.Logger) *Bot {
	return &Bot{
		api:             api,
		tasks:           tasks,
		reader:          reader,
		allowed:         allowed,
		maxVideoMinutes: maxVideoMinutes,
		log:             log,
	}
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	b.log.Info("Bot started in polling mode", zap.Int("allowed_users", len(b.allowed)))
	var offset int64
	for {
		updates, err := b.api.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			b.log.Warn("Polling failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.Handle(ctx, u)
		}
	}
}

// Handle processes one update.
func (b *Bot) Handle(ctx context.Context, u client.TelegramUpdate) {
	switch {
	case u.Message != nil:
		b.handleMessage(ctx, u.Message)
	case u.CallbackQuery != nil:
		b.handleCallback(ctx, u.CallbackQuery)
	}
}

// allowedUser is a strict whitelist: an empty list denies everyone.
func (b *Bot) allowedUser(id int64) bool {
	return len(b.allowed) > 0 && b.allowed[id]
}

func (b *Bot) handleMessage(ctx context.Context, m *client.TelegramMessage) {
	chatID := m.Chat.ID
	userID := m.SenderID()
	if !b.allowedUser(userID) {
		b.reply(ctx, chatID, "Access denied.")
		return
	}

	text := strings.TrimSpace(m.Text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		cmd, args := splitCommand(text)
		switch cmd {
		case "start":
			b.reply(ctx, chatID, "Send a YouTube URL.\n"+
				"I will download audio, transcribe it, and return summary + lecture outline.\n"+
				"Supported languages: RU / EN / AR.")
			return
		case "help":
			b.reply(ctx, chatID, fmt.Sprintf("Commands:\n/start\n/help\n/status <task_id>\n\n"+
				"Restrictions:\n- Max video length: %d minutes", b.maxVideoMinutes))
			return
		case "status":
			b.status(ctx, chatID, userID, args)
			return
		}
	}

	b.submit(ctx, chatID, userID, text)
}

func (b *Bot) submit(ctx context.Context, chatID, userID int64, url string) {
	resp, err := b.tasks.Submit(ctx, userID, url)
	if errors.Is(err, service.ErrInvalidURL) {
		b.reply(ctx, chatID, "Please send a valid YouTube URL.")
		return
	}
	if err != nil {
		b.log.Error("Failed to accept task", zap.Int64("user_id", userID), zap.Error(err))
		b.reply(ctx, chatID, "Could not accept the task right now. Please try again later.")
		return
	}

	text := fmt.Sprintf("Accepted. Task ID: %d.\nUse /status %d to check progress.", resp.TaskID, resp.TaskID)
	button := client.InlineButton{Text: "Check status", CallbackData: fmt.Sprintf("%s%d", statusCallbackPrefix, resp.TaskID)}
	if err := b.api.SendTextWithButtons(ctx, chatID, text, button); err != nil {
		b.log.Warn("Reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) status(ctx context.Context, chatID, userID int64, args string) {
	if args == "" {
		b.reply(ctx, chatID, "Usage: /status <task_id>")
		return
	}
	taskID, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "task_id must be an integer.")
		return
	}

	task, ok := b.ownedTask(ctx, chatID, userID, taskID)
	if !ok {
		return
	}
	if task.Status != model.TaskStatusCompleted {
		b.reply(ctx, chatID, fmt.Sprintf("Task %d status: %s", task.ID, task.Status))
		return
	}
	if task.Result == nil {
		b.reply(ctx, chatID, fmt.Sprintf("Task %d completed but result missing.", task.ID))
		return
	}

	b.reply(ctx, chatID, fmt.Sprintf("Task %d status: completed. Sending files.", task.ID))
	if err := pipeline.SendResult(ctx, b.api, chatID, task.ID, task.Result); err != nil {
		b.log.Warn("Result delivery failed", zap.Int64("task_id", task.ID), zap.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, q *client.TelegramCallbackQuery) {
	defer func() {
		if err := b.api.AnswerCallbackQuery(ctx, q.ID); err != nil {
			b.log.Debug("answerCallbackQuery failed", zap.Error(err))
		}
	}()

	chatID := q.From.ID
	if q.Message != nil {
		chatID = q.Message.Chat.ID
	}
	if !b.allowedUser(q.From.ID) {
		b.reply(ctx, chatID, "Access denied.")
		return
	}

	raw, found := strings.CutPrefix(q.Data, statusCallbackPrefix)
	if !found {
		return
	}
	taskID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}

	task, ok := b.ownedTask(ctx, chatID, q.From.ID, taskID)
	if !ok {
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Task %d status: %s", task.ID, task.Status))
}

// ownedTask loads a task for userID, replying and returning false when it is
// missing or owned by someone else.
func (b *Bot) ownedTask(ctx context.Context, chatID, userID, taskID int64) (*model.Task, bool) {
	task, err := b.reader.GetWithResult(ctx, taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		b.reply(ctx, chatID, fmt.Sprintf("Task %d not found.", taskID))
		return nil, false
	}
	if err != nil {
		b.log.Error("Task lookup failed", zap.Int64("task_id", taskID), zap.Error(err))
		b.reply(ctx, chatID, "Could not load the task right now. Please try again later.")
		return nil, false
	}
	if task.OwnerID != userID {
		b.reply(ctx, chatID, "This task does not belong to you.")
		return nil, false
	}
	return task, true
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.api.SendText(ctx, chatID, text); err != nil {
		b.log.Warn("Reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// splitCommand turns "/status@my_bot 12" into ("status", "12").
func splitCommand(text string) (string, string) {
	head, rest, _ := strings.Cut(text, " ")
	cmd := strings.TrimPrefix(head, "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}
