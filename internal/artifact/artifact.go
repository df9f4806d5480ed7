// Package artifact archives run outputs to object storage.
// Archival is best-effort: failures are logged and never fail a run.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"

	"go.uber.org/zap"

	"github.com/AlecFritsch/inito/internal/config"
	"github.com/AlecFritsch/inito/internal/model"
	"github.com/AlecFritsch/inito/pkg/logger"
)

// ObjectStore is the upload side of an object storage client
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Bundle holds the artifacts of one run; empty fields are skipped
type Bundle struct {
	IntentCard string
	Diff       string
	Plan       *model.Plan
	Review     *model.ReviewResult
	Confidence *model.ConfidenceBreakdown
	Policy     *model.PolicyResult
}

// Archiver stores run bundles
type Archiver interface {
	Archive(ctx context.Context, runID string, b Bundle) []string
}

// Noop discards bundles
type Noop struct{}

// Archive does nothing
func (Noop) Archive(context.Context, string, Bundle) []string { return nil }

// Store archives bundles under runs/<runID>/
type Store struct {
	objects ObjectStore
	prefix  string
}

// New wraps an object store
func New(objects ObjectStore) *Store {
	return &Store{objects: objects, prefix: "runs"}
}

// FromConfig returns a MinIO-backed archiver, or Noop when archival is disabled
// or the client cannot be created.
func FromConfig(ctx context.Context, cfg config.ArtifactsConfig) Archiver {
	if !cfg.Enabled {
		return Noop{}
	}
	mc, err := NewMinIO(cfg)
	if err != nil {
		logger.Warn("Artifact archival disabled", zap.Error(err))
		return Noop{}
	}
	if err := mc.EnsureBucket(ctx); err != nil {
		logger.Warn("Artifact bucket unavailable, archival disabled", zap.Error(err))
		return Noop{}
	}
	return New(mc)
}

// Key returns the object key of a named artifact
func (s *Store) Key(runID, name string) string {
	return path.Join(s.prefix, runID, name)
}

// Archive uploads every non-empty artifact and returns the keys written
func (s *Store) Archive(ctx context.Context, runID string, b Bundle) []string {
	var written []string

	put := func(name, contentType string, data []byte) {
		if len(data) == 0 {
			return
		}
		key := s.Key(runID, name)
		if err := s.objects.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			logger.Warn("Failed to archive artifact",
				zap.String("run_id", runID),
				zap.String("key", key),
				zap.Error(err))
			return
		}
		written = append(written, key)
	}
	putJSON := func(name string, v interface{}) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return
		}
		put(name, "application/json", data)
	}

	put("intent.md", "text/markdown; charset=utf-8", []byte(b.IntentCard))
	put("changes.diff", "text/x-diff; charset=utf-8", []byte(b.Diff))
	if b.Plan != nil {
		putJSON("plan.json", b.Plan)
	}
	if b.Review != nil {
		putJSON("review.json", b.Review)
	}
	if b.Confidence != nil {
		putJSON("confidence.json", b.Confidence)
	}
	if b.Policy != nil {
		putJSON("policy.json", b.Policy)
	}

	if len(written) > 0 {
		logger.Debug("Archived run artifacts", zap.String("run_id", runID), zap.Int("count", len(written)))
	}
	return written
}
