package service

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var googleBooksBase = "https://www.googleapis.com/books/v1/volumes"

// googleBooksClient has a short timeout so slow/hung responses don't block
// search requests.
var googleBooksClient = &http.Client{Timeout: 15 * time.Second}

const searchMaxResults = 20

// Volume is the trimmed search result the frontend renders.
type Volume struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors,omitempty"`
	PageCount   int      `json:"pageCount,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
	Description string   `json:"description,omitempty"`
}

// googleBooksVolumesResp is the response from GET /volumes?q=...
type googleBooksVolumesResp struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		ID         string `json:"id"`
		VolumeInfo struct {
			Title       string   `json:"title"`
			Subtitle    string   `json:"subtitle"`
			Authors     []string `json:"authors"`
			Description string   `json:"description"`
			PageCount   int      `json:"pageCount"`
			ImageLinks  struct {
				Thumbnail string `json:"thumbnail"`
			} `json:"imageLinks"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// SearchVolumes queries the Google Books API for volumes matching query.
func SearchVolumes(ctx context.Context, query string) ([]Volume, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	q := url.Values{}
	q.Set("q", query)
	q.Set("maxResults", strconv.Itoa(searchMaxResults))
	u := googleBooksBase + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := googleBooksClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google books returned %d", resp.StatusCode)
	}

	var data googleBooksVolumesResp
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	volumes := make([]Volume, 0, len(data.Items))
	for _, item := range data.Items {
		vi := item.VolumeInfo
		title := vi.Title
		if vi.Subtitle != "" {
			title = title + ": " + vi.Subtitle
		}
		volumes = append(volumes, Volume{
			ID:          item.ID,
			Title:       title,
			Authors:     vi.Authors,
			PageCount:   vi.PageCount,
			Thumbnail:   vi.ImageLinks.Thumbnail,
			Description: vi.Description,
		})
	}
	return volumes, nil
}
