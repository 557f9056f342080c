package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/reado/reado-server/models"
	"github.com/reado/reado-server/service"
	"github.com/reado/reado-server/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommentStore is what the comment handlers need from the persistence layer.
type CommentStore interface {
	InsertComment(ctx context.Context, comment *models.Comment) (primitive.ObjectID, error)
	CommentByID(ctx context.Context, id primitive.ObjectID) (*models.Comment, error)
	FindComments(ctx context.Context, filter store.CommentFilter) ([]models.Comment, error)
	DeleteComment(ctx context.Context, id primitive.ObjectID) error
	React(ctx context.Context, id, userID primitive.ObjectID, polarity store.Polarity) (*models.Comment, error)
	ApplyLLMSpoiler(ctx context.Context, id primitive.ObjectID, isSpoiler bool, confidence float64) (bool, error)
}

// AuthorStore resolves comment authors for response population.
type AuthorStore interface {
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.UserRef, error)
}

type CommentsHandler struct {
	Comments    CommentStore
	Users       AuthorStore
	Perspective *service.PerspectiveClient
	Spoiler     *service.SpoilerClient
	Logger      *slog.Logger

	// ClassifyTimeout bounds each background classification task.
	ClassifyTimeout time.Duration

	background sync.WaitGroup
}

// WaitBackground blocks until all detached classification tasks finish.
// Called on shutdown (and by tests).
func (h *CommentsHandler) WaitBackground() {
	h.background.Wait()
}

type createCommentRequest struct {
	BookID            string   `json:"bookId"`
	UserID            string   `json:"userId"`
	Page              *int     `json:"page"`
	Percent           *float64 `json:"percent"`
	Text              string   `json:"text"`
	UserMarkedSpoiler *bool    `json:"userMarkedSpoiler"`
	BookTitle         string   `json:"bookTitle"`
	PageRange         string   `json:"pageRange"`
}

// Create handles POST /comments. The toxicity check and the insert are
// synchronous; spoiler classification is scheduled as a detached task and
// the response never waits for it.
func (h *CommentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.BookID == "" || req.UserID == "" || req.Text == "" {
		http.Error(w, `{"error":"bookId, userId, and text are required"}`, http.StatusBadRequest)
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	nsfw := h.Perspective.CheckNSFW(r.Context(), req.Text)

	spoiler := models.Spoiler{IsSpoiler: false, Source: models.SpoilerSourceNone}
	if req.UserMarkedSpoiler != nil && *req.UserMarkedSpoiler {
		spoiler = models.Spoiler{IsSpoiler: true, Source: models.SpoilerSourceUser}
	}

	comment := &models.Comment{
		BookID:     req.BookID,
		UserID:     userID,
		Page:       req.Page,
		Percent:    req.Percent,
		Text:       req.Text,
		LikedBy:    []primitive.ObjectID{},
		DislikedBy: []primitive.ObjectID{},
		CreatedAt:  time.Now().UTC(),
		NSFW:       nsfw,
		Spoiler:    spoiler,
	}
	id, err := h.Comments.InsertComment(r.Context(), comment)
	if err != nil {
		http.Error(w, `{"error":"failed to save comment"}`, http.StatusBadRequest)
		return
	}
	comment.ID = id

	// A user assertion is final; only unmarked comments get classified.
	if spoiler.Source != models.SpoilerSourceUser && h.Spoiler.Enabled() {
		h.background.Add(1)
		go h.classifySpoiler(id, req.Text, req.BookTitle, req.Page, req.PageRange)
	}

	h.populateAuthors(r.Context(), comment)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(comment)
}

// classifySpoiler runs detached from the request that spawned it: its own
// context, its own error boundary, nothing propagated to the client. Any
// failure leaves the comment's provisional spoiler state in place.
func (h *CommentsHandler) classifySpoiler(id primitive.ObjectID, text, bookTitle string, page *int, pageRange string) {
	defer h.background.Done()
	defer func() {
		if p := recover(); p != nil {
			h.Logger.Error("spoiler classification panic", "comment_id", id.Hex(), "panic", p)
		}
	}()

	timeout := h.ClassifyTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := h.Spoiler.Classify(ctx, text, bookTitle, page, pageRange)
	if err != nil {
		h.Logger.Warn("spoiler classification skipped", "comment_id", id.Hex(), "error", err)
		return
	}
	updated, err := h.Comments.ApplyLLMSpoiler(ctx, id, result.IsSpoiler, result.Confidence)
	if err != nil {
		h.Logger.Error("spoiler classification write failed", "comment_id", id.Hex(), "error", err)
		return
	}
	if !updated {
		// The author flagged it while we were classifying; their word stands.
		return
	}
	h.Logger.Info("comment classified",
		"comment_id", id.Hex(),
		"is_spoiler", result.IsSpoiler,
		"confidence", result.Confidence,
	)
}

// List handles GET /comments?bookId=&page=&userId=.
func (h *CommentsHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter store.CommentFilter
	filter.BookID = r.URL.Query().Get("bookId")
	if v := r.URL.Query().Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, `{"error":"invalid page"}`, http.StatusBadRequest)
			return
		}
		filter.Page = &page
	}
	if v := r.URL.Query().Get("userId"); v != "" {
		userID, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
			return
		}
		filter.UserID = &userID
	}

	comments, err := h.Comments.FindComments(r.Context(), filter)
	if err != nil {
		http.Error(w, `{"error":"failed to list comments"}`, http.StatusBadRequest)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	refs := make([]*models.Comment, len(comments))
	for i := range comments {
		refs[i] = &comments[i]
	}
	h.populateAuthors(r.Context(), refs...)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comments)
}

// Like handles PATCH /comments/{id}/like.
func (h *CommentsHandler) Like(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, store.PolarityLike)
}

// Dislike handles PATCH /comments/{id}/dislike.
func (h *CommentsHandler) Dislike(w http.ResponseWriter, r *http.Request) {
	h.react(w, r, store.PolarityDislike)
}

type reactRequest struct {
	UserID string `json:"userId"`
}

func (h *CommentsHandler) react(w http.ResponseWriter, r *http.Request, polarity store.Polarity) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid comment id"}`, http.StatusBadRequest)
		return
	}
	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}
	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	comment, err := h.Comments.React(r.Context(), id, userID, polarity)
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"comment not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"failed to update reaction"}`, http.StatusBadRequest)
		return
	}
	h.populateAuthors(r.Context(), comment)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(comment)
}

type voteStatusResponse struct {
	HasLiked    bool `json:"hasLiked"`
	HasDisliked bool `json:"hasDisliked"`
}

// VoteStatus handles GET /comments/{id}/vote-status?userId=.
func (h *CommentsHandler) VoteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid comment id"}`, http.StatusBadRequest)
		return
	}
	userIDStr := r.URL.Query().Get("userId")
	if userIDStr == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}
	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}

	comment, err := h.Comments.CommentByID(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"comment not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"failed to load comment"}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(voteStatusResponse{
		HasLiked:    comment.LikedByUser(userID),
		HasDisliked: comment.DislikedByUser(userID),
	})
}

type deleteCommentRequest struct {
	UserID string `json:"userId"`
}

// Delete handles DELETE /comments/{id}; only the comment owner may delete.
func (h *CommentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error":"invalid comment id"}`, http.StatusBadRequest)
		return
	}
	var req deleteCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		http.Error(w, `{"error":"userId is required"}`, http.StatusBadRequest)
		return
	}

	comment, err := h.Comments.CommentByID(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"comment not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"failed to load comment"}`, http.StatusBadRequest)
		return
	}
	if comment.UserID.Hex() != req.UserID {
		http.Error(w, `{"error":"you can only delete your own comments"}`, http.StatusForbidden)
		return
	}
	if err := h.Comments.DeleteComment(r.Context(), id); err != nil {
		http.Error(w, `{"error":"failed to delete comment"}`, http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"message":"comment deleted"}`))
}

// populateAuthors batch-resolves the authors for a set of comments. Lookup
// failures leave comments unpopulated rather than failing the request.
func (h *CommentsHandler) populateAuthors(ctx context.Context, comments ...*models.Comment) {
	if len(comments) == 0 {
		return
	}
	seen := make(map[primitive.ObjectID]struct{}, len(comments))
	ids := make([]primitive.ObjectID, 0, len(comments))
	for _, c := range comments {
		if _, ok := seen[c.UserID]; !ok {
			seen[c.UserID] = struct{}{}
			ids = append(ids, c.UserID)
		}
	}
	refs, err := h.Users.UsersByIDs(ctx, ids)
	if err != nil {
		h.Logger.Warn("author lookup failed", "error", err)
		return
	}
	byID := make(map[primitive.ObjectID]models.UserRef, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref
	}
	for _, c := range comments {
		if ref, ok := byID[c.UserID]; ok {
			r := ref
			c.Author = &r
		}
	}
}
