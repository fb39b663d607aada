package cache

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rafid/crosspost/internal/model"
)

// PostArchive is the typed view over the KeyScheduledPosts blob: the whole
// collection serialized as one JSON array, rewritten after every mutation.
type PostArchive struct {
	kv     KV
	logger *slog.Logger
}

// NewPostArchive wraps kv with JSON (de)serialization of the post collection.
func NewPostArchive(kv KV, logger *slog.Logger) *PostArchive {
	return &PostArchive{kv: kv, logger: logger}
}

// Load returns the persisted collection. Absent or unparsable content yields
// (nil, false, nil) so the store starts empty instead of failing.
func (a *PostArchive) Load(ctx context.Context) ([]model.Post, bool, error) {
	raw, ok, err := a.kv.Get(ctx, KeyScheduledPosts)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var posts []model.Post
	if err := json.Unmarshal(raw, &posts); err != nil {
		a.logger.Warn("cache: discarding unparsable scheduledPosts blob",
			slog.String("error", err.Error()),
		)
		return nil, false, nil
	}
	return posts, true, nil
}

// Store persists the full collection.
func (a *PostArchive) Store(ctx context.Context, posts []model.Post) error {
	raw, err := json.Marshal(posts)
	if err != nil {
		return err
	}
	return a.kv.Put(ctx, KeyScheduledPosts, raw)
}
