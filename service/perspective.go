package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const defaultPerspectiveURL = "https://commentanalyzer.googleapis.com/v1alpha1/comments:analyze"

// nsfwThreshold: a comment is NSFW when any requested attribute's summary
// score exceeds this.
const nsfwThreshold = 0.7

var nsfwAttributes = []string{
	"TOXICITY",
	"SEVERE_TOXICITY",
	"SEXUALLY_EXPLICIT",
	"INSULT",
	"PROFANITY",
}

// PerspectiveClient scores comment text against the Google Perspective API.
// Moderation fails open: a missing key, a provider error, or an open breaker
// all yield "not NSFW" rather than blocking the post.
type PerspectiveClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	breaker *gobreaker.CircuitBreaker[bool]
}

func NewPerspectiveClient(apiKey string, logger *slog.Logger) *PerspectiveClient {
	return &PerspectiveClient{
		APIKey:     apiKey,
		BaseURL:    defaultPerspectiveURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
		breaker: gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name:    "perspective",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// CheckNSFW reports whether text crosses the toxicity threshold. Never
// returns an error; failures degrade to false.
func (c *PerspectiveClient) CheckNSFW(ctx context.Context, text string) bool {
	if c.APIKey == "" {
		return false
	}
	nsfw, err := c.breaker.Execute(func() (bool, error) {
		return c.analyze(ctx, text)
	})
	if err != nil {
		c.Logger.Warn("perspective check failed, treating as not nsfw", "error", err)
		return false
	}
	return nsfw
}

type perspectiveRequest struct {
	Comment struct {
		Text string `json:"text"`
	} `json:"comment"`
	RequestedAttributes map[string]struct{} `json:"requestedAttributes"`
	DoNotStore          bool                `json:"doNotStore"`
}

type perspectiveResponse struct {
	AttributeScores map[string]struct {
		SummaryScore struct {
			Value float64 `json:"value"`
		} `json:"summaryScore"`
	} `json:"attributeScores"`
}

func (c *PerspectiveClient) analyze(ctx context.Context, text string) (bool, error) {
	var reqBody perspectiveRequest
	reqBody.Comment.Text = text
	reqBody.RequestedAttributes = make(map[string]struct{}, len(nsfwAttributes))
	for _, attr := range nsfwAttributes {
		reqBody.RequestedAttributes[attr] = struct{}{}
	}
	reqBody.DoNotStore = true

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"?key="+c.APIKey, bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("perspective returned %d", resp.StatusCode)
	}

	var result perspectiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, err
	}
	for _, attr := range nsfwAttributes {
		if result.AttributeScores[attr].SummaryScore.Value > nsfwThreshold {
			return true, nil
		}
	}
	return false, nil
}
