package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/youtubelmm/api/internal/config"
	"github.com/youtubelmm/api/internal/model"
)

func newTelegramServer(t *testing.T, handler http.HandlerFunc) *TelegramClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewTelegramClient(&config.TelegramConfig{BotToken: "123:abc", APIBaseURL: srv.URL, PollTimeout: 1})
	t.Cleanup(func() { c.Close() })
	return c
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	c := newTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bot123:abc/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":5}}}`))
	})

	if err := c.SendText(context.Background(), 5, "Task 1 completed. Sending result files."); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["text"] != "Task 1 completed. Sending result files." || got["chat_id"] != float64(5) {
		t.Errorf("unexpected body %v", got)
	}
}

func TestTelegramSendFileMultipart(t *testing.T) {
	c := newTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if r.FormValue("chat_id") != "9" || r.FormValue("caption") != "Task 3: summary" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		f, hdr, err := r.FormFile("document")
		if err != nil {
			t.Errorf("missing document: %v", err)
			return
		}
		body, _ := io.ReadAll(f)
		if hdr.Filename != "task_3_summary.md" || !strings.HasPrefix(string(body), "# Summary") {
			t.Errorf("unexpected file %s %q", hdr.Filename, body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"message_id":2,"chat":{"id":9}}}`))
	})

	doc := model.Document{
		FileName:    "task_3_summary.md",
		Content:     []byte("# Summary\n\nTask ID: 3\n\nok\n"),
		ContentType: "text/markdown",
		Caption:     "Task 3: summary",
	}
	if err := c.SendFile(context.Background(), 9, doc); err != nil {
		t.Fatalf("send file: %v", err)
	}
}

func TestTelegramErrorResponse(t *testing.T) {
	c := newTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	})

	err := c.SendText(context.Background(), 1, "hi")
	if err == nil || !strings.Contains(err.Error(), "bot was blocked") {
		t.Fatalf("expected blocked error, got %v", err)
	}
}

func TestTelegramGetUpdates(t *testing.T) {
	c := newTelegramServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["offset"] != float64(11) {
			t.Errorf("unexpected offset %v", body["offset"])
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":11,"message":{"message_id":1,"from":{"id":7},"chat":{"id":7},"text":"/status 4"}},
			{"update_id":12,"callback_query":{"id":"cb","from":{"id":7},"data":"status:4"}}
		]}`))
	})

	updates, err := c.GetUpdates(context.Background(), 11)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 2 || updates[0].Message.SenderID() != 7 || updates[1].CallbackQuery.Data != "status:4" {
		t.Fatalf("unexpected updates %+v", updates)
	}
}
