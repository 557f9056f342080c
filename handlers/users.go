package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/reado/reado-server/middleware"
	"github.com/reado/reado-server/models"
	"github.com/reado/reado-server/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserStore is what the user handlers need from the persistence layer.
type UserStore interface {
	UpsertGoogleUser(ctx context.Context, user *models.User) (*models.User, error)
	UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.UserRef, error)
	AddBookmark(ctx context.Context, userID primitive.ObjectID, bm models.Bookmark) ([]models.Bookmark, error)
	Bookmarks(ctx context.Context, userID primitive.ObjectID) ([]models.Bookmark, error)
}

type UsersHandler struct {
	Users UserStore
}

type googleUpsertRequest struct {
	GoogleID    string `json:"googleId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Picture     string `json:"picture"`
	AccessToken string `json:"accessToken"`
}

type googleUpsertResponse struct {
	Success bool           `json:"success"`
	User    publicUserView `json:"user"`
}

type publicUserView struct {
	ID       string `json:"_id"`
	GoogleID string `json:"googleId"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Picture  string `json:"picture"`
}

// GoogleUpsert handles POST /users/auth/google, the SPA's profile-push path.
func (h *UsersHandler) GoogleUpsert(w http.ResponseWriter, r *http.Request) {
	var req googleUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.GoogleID == "" || req.Name == "" || req.Email == "" || req.Picture == "" || req.AccessToken == "" {
		http.Error(w, `{"error":"missing required fields"}`, http.StatusBadRequest)
		return
	}
	user, err := h.Users.UpsertGoogleUser(r.Context(), &models.User{
		GoogleID:    req.GoogleID,
		Name:        req.Name,
		Email:       req.Email,
		Picture:     req.Picture,
		AccessToken: req.AccessToken,
	})
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(googleUpsertResponse{
		Success: true,
		User: publicUserView{
			ID:       user.ID.Hex(),
			GoogleID: user.GoogleID,
			Name:     user.Name,
			Email:    user.Email,
			Picture:  user.Picture,
		},
	})
}

// Get handles GET /users/{userId}. Token fields are never serialized.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return
	}
	user, err := h.Users.UserByID(r.Context(), id)
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

type batchRequest struct {
	UserIDs []string `json:"userIds"`
}

// Batch handles POST /users/batch, resolving comment authors in one call.
func (h *UsersHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserIDs == nil {
		http.Error(w, `{"error":"userIds array is required"}`, http.StatusBadRequest)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(req.UserIDs))
	for _, s := range req.UserIDs {
		id, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	refs, err := h.Users.UsersByIDs(r.Context(), ids)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if refs == nil {
		refs = []models.UserRef{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(refs)
}

type addBookmarkRequest struct {
	BookID string `json:"bookId"`
	Page   *int   `json:"page"`
	Color  string `json:"color"`
}

// AddBookmark handles POST /users/{userId}/bookmarks. Adding a bookmark for
// a (bookId, page) pair that already has one replaces it. The route is
// token-protected; the token subject must match the path user.
func (h *UsersHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}
	var req addBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.BookID == "" || req.Page == nil || req.Color == "" {
		http.Error(w, `{"error":"bookId, page, and color are required"}`, http.StatusBadRequest)
		return
	}
	bookmarks, err := h.Users.AddBookmark(r.Context(), userID, models.Bookmark{
		BookID: req.BookID,
		Page:   *req.Page,
		Color:  req.Color,
	})
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bookmarks)
}

// GetBookmarks handles GET /users/{userId}/bookmarks.
func (h *UsersHandler) GetBookmarks(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authorizedUser(w, r)
	if !ok {
		return
	}
	bookmarks, err := h.Users.Bookmarks(r.Context(), userID)
	if err == store.ErrNotFound {
		http.Error(w, `{"error":"user not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bookmarks)
}

// authorizedUser parses the path user id and checks it against the
// authenticated token subject. Writes the error response itself.
func (h *UsersHandler) authorizedUser(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	userID, err := primitive.ObjectIDFromHex(chi.URLParam(r, "userId"))
	if err != nil {
		http.Error(w, `{"error":"invalid user id"}`, http.StatusBadRequest)
		return primitive.NilObjectID, false
	}
	tokenUser, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return primitive.NilObjectID, false
	}
	if tokenUser != userID {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		return primitive.NilObjectID, false
	}
	return userID, true
}
