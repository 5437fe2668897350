package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/youtubelmm/api/internal/export"
	"github.com/youtubelmm/api/internal/model"
)

// SendResult delivers every exported file of a stored result, stopping at the
// first failure.
func SendResult(ctx context.Context, n Notifier, recipient, taskID int64, result *model.Result) error {
	return sendAll(ctx, n, recipient, export.Documents(taskID, result))
}

func (p *Pipeline) sendDocuments(ctx context.Context, recipient int64, docs []model.Document) error {
	if p.deps.Notifier == nil {
		return nil
	}
	return sendAll(ctx, p.deps.Notifier, recipient, docs)
}

func sendAll(ctx context.Context, n Notifier, recipient int64, docs []model.Document) error {
	for _, doc := range docs {
		if err := n.SendFile(ctx, recipient, doc); err != nil {
			return fmt.Errorf("send %s: %w", doc.FileName, err)
		}
	}
	return nil
}

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }
