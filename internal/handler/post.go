package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rafid/crosspost/internal/apperror"
	"github.com/rafid/crosspost/internal/model"
	"github.com/rafid/crosspost/internal/post"
)

const (
	defaultUpcomingLimit = 20
	maxUpcomingLimit     = 500
)

// PostHandler serves the scheduled-post CRUD plus the upcoming view and
// the stats rollup.
type PostHandler struct {
	store  *post.Store
	logger *slog.Logger
}

func NewPostHandler(store *post.Store, logger *slog.Logger) *PostHandler {
	return &PostHandler{store: store, logger: logger}
}

// HandleCreate schedules a new post.
//
// HTTP: POST /posts
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var draft model.PostDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}

	p, err := h.store.Add(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("post scheduled",
		slog.String("postID", p.ID),
		slog.String("platform", string(p.Platform)),
	)
	writeJSON(w, http.StatusCreated, p)
}

// HandleList returns the whole collection in insertion order.
//
// HTTP: GET /posts
func (h *PostHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	posts := h.store.All()
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// HandleGet returns one post by id.
//
// HTTP: GET /posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate applies a partial update.
//
// HTTP: PATCH /posts/{id}
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch model.PostPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}

	p, err := h.store.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleDelete removes a post. Deleting an unknown id still returns 204:
// the end state the caller asked for holds either way.
//
// HTTP: DELETE /posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUpcoming lists posts starting after now, soonest first.
//
// HTTP: GET /posts/upcoming?limit=n
func (h *PostHandler) HandleUpcoming(w http.ResponseWriter, r *http.Request) {
	limit := defaultUpcomingLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperror.ValidationFailed("limit", "must be a non-negative integer"))
			return
		}
		// The limit sizes an allocation below, so an oversized value is
		// clamped rather than trusted.
		limit = min(n, maxUpcomingLimit)
	}

	posts := make([]model.Post, 0, limit)
	for p := range h.store.Upcoming(limit) {
		posts = append(posts, p)
	}
	writeJSON(w, http.StatusOK, posts)
}

type statsResponse struct {
	Total      int                    `json:"total"`
	Completed  int                    `json:"completed"`
	ByPlatform map[model.Platform]int `json:"byPlatform"`
}

// HandleStats reports collection totals.
//
// HTTP: GET /posts/stats
func (h *PostHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	byPlatform := h.store.CountByPlatform()
	total := 0
	for _, n := range byPlatform {
		total += n
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Total:      total,
		Completed:  h.store.CompletedCount(),
		ByPlatform: byPlatform,
	})
}
