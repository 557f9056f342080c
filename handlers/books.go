package handlers

import (
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/reado/reado-server/service"
)

type BooksHandler struct {
	Logger *slog.Logger
}

// Search handles GET /books/search?q=. A provider outage degrades to an
// empty result list; the reader just sees no matches.
func (h *BooksHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, `{"error":"q is required"}`, http.StatusBadRequest)
		return
	}
	volumes, err := service.SearchVolumes(r.Context(), query)
	if err != nil {
		h.Logger.Warn("book search failed", "query", query, "error", err)
		volumes = []service.Volume{}
	}
	if volumes == nil {
		volumes = []service.Volume{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(volumes)
}
