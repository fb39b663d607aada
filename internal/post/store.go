// Package post holds the scheduled-post collection: an in-memory store
// mirrored to the local cache after every mutation, so a restart rehydrates
// the schedule exactly as it was left.
package post

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/cache"
	"github.com/rafid/crosspost/internal/model"
)

// Options configures a Store.
type Options struct {
	Archive *cache.PostArchive
	Logger  *slog.Logger
	Now     func() time.Time // defaults to time.Now
}

// Store owns the scheduled-post collection. All access goes through its
// methods; the slice is never shared with callers.
type Store struct {
	archive  *cache.PostArchive
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time

	mu    sync.Mutex
	posts []model.Post
}

// New builds a Store hydrated from the archive. An absent or unreadable
// archive yields an empty collection; a cache I/O failure is returned.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Archive == nil {
		return nil, errors.New("post: Options.Archive is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("post: Options.Logger is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	posts, ok, err := opts.Archive.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrating post store: %w", err)
	}
	if ok {
		opts.Logger.Info("post store hydrated from cache", slog.Int("count", len(posts)))
	}

	return &Store{
		archive:  opts.Archive,
		logger:   opts.Logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      now,
		posts:    posts,
	}, nil
}

// Add validates the draft, stamps identity and lifecycle fields, and
// persists the grown collection. The returned post carries the stamped
// values; anything the caller set for them is ignored.
func (s *Store) Add(ctx context.Context, draft model.PostDraft) (model.Post, error) {
	if err := s.validate.Struct(draft); err != nil {
		return model.Post{}, asValidation(err)
	}

	p := model.Post{
		ID:        xid.New().String(),
		Title:     draft.Title,
		Content:   draft.Content,
		Platform:  draft.Platform,
		Media:     draft.Media,
		Start:     draft.Start,
		End:       draft.End,
		Status:    model.StatusScheduled,
		CreatedAt: s.now(),
	}
	if p.End.IsZero() {
		p.End = p.Start.Add(time.Hour)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append(s.posts, p)
	s.persist(ctx)
	return p, nil
}

// Update applies the non-nil fields of patch to the post with the given id.
// ID and CreatedAt are immutable; the patch has no way to express them.
func (s *Store) Update(ctx context.Context, id string, patch model.PostPatch) (model.Post, error) {
	if err := s.validate.Struct(patch); err != nil {
		return model.Post{}, asValidation(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.posts, func(p model.Post) bool { return p.ID == id })
	if i < 0 {
		return model.Post{}, apperror.NotFound("post", id)
	}

	p := s.posts[i]
	if patch.Title != nil {
		p.Title = *patch.Title
	}
	if patch.Content != nil {
		p.Content = *patch.Content
	}
	if patch.Platform != nil {
		p.Platform = *patch.Platform
	}
	if patch.Media != nil {
		p.Media = *patch.Media
	}
	if patch.Start != nil {
		p.Start = *patch.Start
	}
	if patch.End != nil {
		p.End = *patch.End
	}
	if patch.Status != nil {
		p.Status = *patch.Status
	}
	if !p.End.IsZero() && !p.End.After(p.Start) {
		return model.Post{}, apperror.ValidationFailed("end", "must be after start")
	}
	p.UpdatedAt = s.now()

	s.posts[i] = p
	s.persist(ctx)
	return p, nil
}

// Remove deletes the post with the given id. Removing an id that is not
// present succeeds without touching the archive.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.posts, func(p model.Post) bool { return p.ID == id })
	if i < 0 {
		return nil
	}
	s.posts = slices.Delete(s.posts, i, i+1)
	s.persist(ctx)
	return nil
}

// Get returns the post with the given id.
func (s *Store) Get(id string) (model.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.posts, func(p model.Post) bool { return p.ID == id })
	if i < 0 {
		return model.Post{}, apperror.NotFound("post", id)
	}
	return s.posts[i], nil
}

// All returns a copy of the whole collection in insertion order.
func (s *Store) All() []model.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.posts)
}

// Upcoming yields up to limit posts whose start lies strictly after the
// current time, soonest first. The selection is taken against a snapshot,
// so iterating is safe while other goroutines mutate the store.
func (s *Store) Upcoming(limit int) iter.Seq[model.Post] {
	s.mu.Lock()
	now := s.now()
	future := make([]model.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Start.After(now) {
			future = append(future, p)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(future, func(a, b model.Post) int {
		return a.Start.Compare(b.Start)
	})
	if limit >= 0 && len(future) > limit {
		future = future[:limit]
	}

	return func(yield func(model.Post) bool) {
		for _, p := range future {
			if !yield(p) {
				return
			}
		}
	}
}

// CompletedCount reports how many posts have a start strictly in the past —
// their publication slot has come and gone.
func (s *Store) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, p := range s.posts {
		if p.Start.Before(now) {
			n++
		}
	}
	return n
}

// CountByPlatform reports the collection size per platform.
func (s *Store) CountByPlatform() map[model.Platform]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.Platform]int)
	for _, p := range s.posts {
		counts[p.Platform]++
	}
	return counts
}

// persist mirrors the collection to the archive. Callers hold s.mu.
//
// An empty collection is never written over whatever the archive holds:
// a wiped in-memory state (fresh start, bulk delete) must not destroy the
// last good snapshot. Archive failures are logged, not surfaced; the
// in-memory state is already committed.
func (s *Store) persist(ctx context.Context) {
	if len(s.posts) == 0 {
		return
	}
	if err := s.archive.Store(ctx, s.posts); err != nil {
		s.logger.Warn("post archive write failed", slog.String("error", err.Error()))
	}
}

// asValidation converts the validator's first field error into the
// application's validation error.
func asValidation(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("failed %q constraint", fe.Tag()))
	}
	return apperror.ValidationFailed("", err.Error())
}
