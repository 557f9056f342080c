package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func perspectiveServer(t *testing.T, scores map[string]float64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req perspectiveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.DoNotStore)
		assert.Len(t, req.RequestedAttributes, len(nsfwAttributes))

		resp := map[string]any{"attributeScores": map[string]any{}}
		attrs := resp["attributeScores"].(map[string]any)
		for name, value := range scores {
			attrs[name] = map[string]any{"summaryScore": map[string]any{"value": value}}
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestPerspective(baseURL string) *PerspectiveClient {
	c := NewPerspectiveClient("test-key", testLogger())
	c.BaseURL = baseURL
	return c
}

func TestPerspectiveCheckNSFW(t *testing.T) {
	t.Parallel()

	t.Run("single score above threshold flags nsfw", func(t *testing.T) {
		t.Parallel()
		srv := perspectiveServer(t, map[string]float64{
			"TOXICITY": 0.8, "SEVERE_TOXICITY": 0, "SEXUALLY_EXPLICIT": 0, "INSULT": 0, "PROFANITY": 0,
		})
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		assert.True(t, c.CheckNSFW(context.Background(), "some text"))
	})

	t.Run("all scores below threshold is clean", func(t *testing.T) {
		t.Parallel()
		srv := perspectiveServer(t, map[string]float64{
			"TOXICITY": 0.69, "SEVERE_TOXICITY": 0.5, "SEXUALLY_EXPLICIT": 0.1, "INSULT": 0.65, "PROFANITY": 0.3,
		})
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		assert.False(t, c.CheckNSFW(context.Background(), "a mild opinion"))
	})

	t.Run("threshold is exclusive", func(t *testing.T) {
		t.Parallel()
		srv := perspectiveServer(t, map[string]float64{"PROFANITY": 0.7})
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		assert.False(t, c.CheckNSFW(context.Background(), "text"))
	})

	t.Run("non-toxicity attribute alone can flag", func(t *testing.T) {
		t.Parallel()
		srv := perspectiveServer(t, map[string]float64{"INSULT": 0.95})
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		assert.True(t, c.CheckNSFW(context.Background(), "text"))
	})

	t.Run("missing api key fails open", func(t *testing.T) {
		t.Parallel()
		c := NewPerspectiveClient("", testLogger())
		assert.False(t, c.CheckNSFW(context.Background(), "anything"))
	})

	t.Run("provider error fails open", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		assert.False(t, c.CheckNSFW(context.Background(), "anything"))
	})

	t.Run("unreachable provider fails open", func(t *testing.T) {
		t.Parallel()
		c := newTestPerspective("http://127.0.0.1:1")
		assert.False(t, c.CheckNSFW(context.Background(), "anything"))
	})

	t.Run("breaker opens after consecutive failures and still fails open", func(t *testing.T) {
		t.Parallel()
		var hits int
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits++
			http.Error(w, "down", http.StatusInternalServerError)
		}))
		defer srv.Close()
		c := newTestPerspective(srv.URL)
		for i := 0; i < 10; i++ {
			assert.False(t, c.CheckNSFW(context.Background(), fmt.Sprintf("text %d", i)))
		}
		// Open breaker short-circuits; provider stops being hammered.
		assert.Less(t, hits, 10)
	})
}
