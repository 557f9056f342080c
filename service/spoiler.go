package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"
const defaultSpoilerModel = "openai/gpt-3.5-turbo"

// jsonBlockRe pulls the JSON object out of a completion that may carry
// extra prose around it.
var jsonBlockRe = regexp.MustCompile(`\{[\s\S]*\}`)

// SpoilerResult is the classifier verdict. Confidence is clamped to [0,1].
type SpoilerResult struct {
	IsSpoiler  bool
	Confidence float64
}

// SpoilerClient asks an LLM whether a comment reveals plot information past
// the page it is attached to. Callers run it off the request path; every
// failure mode is an error the caller logs and drops.
type SpoilerClient struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger

	breaker *gobreaker.CircuitBreaker[*SpoilerResult]
}

func NewSpoilerClient(apiKey string, logger *slog.Logger) *SpoilerClient {
	return &SpoilerClient{
		APIKey:     apiKey,
		Model:      defaultSpoilerModel,
		BaseURL:    defaultOpenRouterURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Logger:     logger,
		breaker: gobreaker.NewCircuitBreaker[*SpoilerResult](gobreaker.Settings{
			Name:    "openrouter",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Enabled reports whether classification is configured at all.
func (c *SpoilerClient) Enabled() bool {
	return c.APIKey != ""
}

// Classify returns the LLM's spoiler verdict for a comment.
func (c *SpoilerClient) Classify(ctx context.Context, text, bookTitle string, page *int, pageRange string) (*SpoilerResult, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("openrouter api key not set")
	}
	return c.breaker.Execute(func() (*SpoilerResult, error) {
		return c.classify(ctx, text, bookTitle, page, pageRange)
	})
}

func buildSpoilerPrompt(text, bookTitle string, page *int, pageRange string) string {
	pageInfo := "unknown page"
	switch {
	case pageRange != "":
		pageInfo = "pages " + pageRange
	case page != nil:
		pageInfo = fmt.Sprintf("page %d", *page)
	}
	bookInfo := ""
	if bookTitle != "" {
		bookInfo = fmt.Sprintf(" for the book %q", bookTitle)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing a comment%s at %s. Determine if this comment reveals future plot information beyond the referenced page range.\n\n", bookInfo, pageInfo)
	fmt.Fprintf(&b, "Comment: %q\n\n", text)
	b.WriteString(`Classification criteria:
- A spoiler is any information that reveals events, character outcomes, or plot developments occurring after the referenced page range
- General opinions, emotions, or themes are NOT spoilers
- Only classify as spoiler if it clearly reveals future plot points

Return ONLY valid JSON in this exact format:
{
  "isSpoiler": true or false,
  "confidence": 0.0 to 1.0
}`)
	return b.String()
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *SpoilerClient) classify(ctx context.Context, text, bookTitle string, page *int, pageRange string) (*SpoilerResult, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a spoiler detection assistant. Always return valid JSON only, no additional text."},
			{Role: "user", Content: buildSpoilerPrompt(text, bookTitle, page, pageRange)},
		},
		MaxTokens:   150,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openrouter returned %d", resp.StatusCode)
	}

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	if len(data.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion")
	}
	content := strings.TrimSpace(data.Choices[0].Message.Content)
	if content == "" {
		return nil, fmt.Errorf("empty completion content")
	}
	block := jsonBlockRe.FindString(content)
	if block == "" {
		return nil, fmt.Errorf("completion contains no JSON object")
	}

	// Pointer fields so missing or wrongly typed fields fail validation
	// instead of defaulting.
	var verdict struct {
		IsSpoiler  *bool    `json:"isSpoiler"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(block), &verdict); err != nil {
		return nil, fmt.Errorf("invalid verdict JSON: %w", err)
	}
	if verdict.IsSpoiler == nil || verdict.Confidence == nil {
		return nil, fmt.Errorf("verdict missing isSpoiler or confidence")
	}
	return &SpoilerResult{
		IsSpoiler:  *verdict.IsSpoiler,
		Confidence: math.Max(0, math.Min(1, *verdict.Confidence)),
	}, nil
}
