package client

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/model"
)

// TelegramClient is a minimal Bot API client.
type TelegramClient struct {
	client      *resty.Client
	pollTimeout int
}

// TelegramUser is the sender of a message.
type TelegramUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// TelegramChat is the conversation a message belongs to.
type TelegramChat struct {
	ID int64 `json:"id"`
}

// TelegramMessage is an incoming message.
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from,omitempty"`
	Chat      TelegramChat  `json:"chat"`
	Text      string        `json:"text,omitempty"`
}

// SenderID returns the user id, or the chat id for anonymous senders.
func (m *TelegramMessage) SenderID() int64 {
	if m.From != nil {
		return m.From.ID
	}
	return m.Chat.ID
}

// TelegramCallbackQuery is a press of an inline keyboard button.
type TelegramCallbackQuery struct {
	ID      string           `json:"id"`
	From    TelegramUser     `json:"from"`
	Message *TelegramMessage `json:"message,omitempty"`
	Data    string           `json:"data,omitempty"`
}

// TelegramUpdate is one entry of getUpdates.
type TelegramUpdate struct {
	UpdateID      int64                  `json:"update_id"`
	Message       *TelegramMessage       `json:"message,omitempty"`
	CallbackQuery *TelegramCallbackQuery `json:"callback_query,omitempty"`
}

// InlineButton is a single inline keyboard button.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type telegramResponse[T any] struct {
	OK          bool   `json:"ok"`
	Result      T      `json:"result"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// NewTelegramClient creates a Bot API client for cfg.BotToken.
func NewTelegramClient(cfg *config.TelegramConfig) *TelegramClient {
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 30
	}

	client := resty.New()
	client.SetBaseURL(base + "/bot" + cfg.BotToken)
	client.SetTimeout(time.Duration(poll+30) * time.Second)

	return &TelegramClient{client: client, pollTimeout: poll}
}

// Close releases idle connections.
func (c *TelegramClient) Close() error {
	return c.client.Close()
}

// SendText sends a plain text message.
func (c *TelegramClient) SendText(ctx context.Context, chatID int64, text string) error {
	return c.sendMessage(ctx, map[string]any{"chat_id": chatID, "text": text})
}

// SendTextWithButtons sends text with one row of inline buttons.
func (c *TelegramClient) SendTextWithButtons(ctx context.Context, chatID int64, text string, buttons ...InlineButton) error {
	return c.sendMessage(ctx, map[string]any{
		"chat_id":      chatID,
		"text":         text,
		"reply_markup": map[string]any{"inline_keyboard": [][]InlineButton{buttons}},
	})
}

func (c *TelegramClient) sendMessage(ctx context.Context, body map[string]any) error {
	var out telegramResponse[TelegramMessage]
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	return checkTelegram("sendMessage", resp, out.OK, out.Description)
}

// SendFile uploads doc as a document.
func (c *TelegramClient) SendFile(ctx context.Context, chatID int64, doc model.Document) error {
	form := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if doc.Caption != "" {
		form["caption"] = doc.Caption
	}

	var out telegramResponse[TelegramMessage]
	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetMultipartFields(&resty.MultipartField{
			Name:        "document",
			FileName:    doc.FileName,
			ContentType: doc.ContentType,
			Reader:      bytes.NewReader(doc.Content),
		}).
		SetResult(&out).
		SetError(&out).
		Post("/sendDocument")
	if err != nil {
		return fmt.Errorf("telegram sendDocument: %w", err)
	}
	return checkTelegram("sendDocument", resp, out.OK, out.Description)
}

// GetUpdates long-polls for updates after offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64) ([]TelegramUpdate, error) {
	var out telegramResponse[[]TelegramUpdate]
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"offset":          offset,
			"timeout":         c.pollTimeout,
			"allowed_updates": []string{"message", "callback_query"},
		}).
		SetResult(&out).
		SetError(&out).
		Post("/getUpdates")
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	if err := checkTelegram("getUpdates", resp, out.OK, out.Description); err != nil {
		return nil, err
	}
	return out.Result, nil
}

// AnswerCallbackQuery acknowledges a button press.
func (c *TelegramClient) AnswerCallbackQuery(ctx context.Context, id string) error {
	var out telegramResponse[bool]
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"callback_query_id": id}).
		SetResult(&out).
		SetError(&out).
		Post("/answerCallbackQuery")
	if err != nil {
		return fmt.Errorf("telegram answerCallbackQuery: %w", err)
	}
	return checkTelegram("answerCallbackQuery", resp, out.OK, out.Description)
}

func checkTelegram(method string, resp *resty.Response, ok bool, description string) error {
	if resp.StatusCode() != 200 || !ok {
		if description == "" {
			description = resp.String()
		}
		return fmt.Errorf("telegram %s failed, status %d: %s", method, resp.StatusCode(), description)
	}
	return nil
}
