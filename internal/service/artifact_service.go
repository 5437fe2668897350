package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/youtubelmm/api/internal/export"
	"github.com/youtubelmm/api/internal/model"
	"github.com/youtubelmm/api/internal/pipeline"
)

// ErrArtifactsDisabled is returned when no archive bucket is configured.
var ErrArtifactsDisabled = errors.New("artifact storage is not configured")

const signedURLExpiry = time.Hour

// SignedStorage is the read side of the artifact archive.
type SignedStorage interface {
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Artifact is one archived file of a task.
type Artifact struct {
	Kind      export.Kind `json:"kind"`
	FileName  string      `json:"fileName"`
	URL       string      `json:"url"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// ArtifactService hands out links to the archived copies of task files.
type ArtifactService struct {
	storage SignedStorage
}

// NewArtifactService creates the service. storage may be nil when archiving is off.
func NewArtifactService(storage SignedStorage) *ArtifactService {
	return &ArtifactService{storage: storage}
}

func (s *ArtifactService) Enabled() bool { return s.storage != nil }

// Links presigns every archived file of a completed task.
func (s *ArtifactService) Links(ctx context.Context, taskID int64, result *model.Result) ([]Artifact, error) {
	if s.storage == nil {
		return nil, ErrArtifactsDisabled
	}
	expires := time.Now().Add(signedURLExpiry)
	var out []Artifact
	for _, kind := range []export.Kind{export.KindSummary, export.KindOutline, export.KindTranscript, export.KindSubtitles} {
		doc, ok := export.Document(taskID, result, kind)
		if !ok {
			continue
		}
		url, err := s.storage.GetSignedURL(ctx, pipeline.ArtifactKey(taskID, doc.FileName), signedURLExpiry)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s: %w", doc.FileName, err)
		}
		out = append(out, Artifact{Kind: kind, FileName: doc.FileName, URL: url, ExpiresAt: expires})
	}
	return out, nil
}

// Purge removes every archived file of a task. It is a no-op when archiving is off.
func (s *ArtifactService) Purge(ctx context.Context, taskID int64) (int, error) {
	if s.storage == nil {
		return 0, nil
	}
	return s.storage.DeletePrefix(ctx, fmt.Sprintf("tasks/%d/", taskID))
}
