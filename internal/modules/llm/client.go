package llm

import (
	"context"
	"strings"

	"autohedge/internal/modules/config"
	"autohedge/pkg/logger"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	http  *resty.Client
	model string
}

func NewClient(cfg *config.Config) *Client {
	rc := resty.New().
		SetBaseURL(cfg.LLM.BaseURL).
		SetAuthToken(cfg.LLM.APIKey).
		SetTimeout(cfg.BrokerTimeout()).
		SetRetryCount(1)
	return &Client{http: rc, model: cfg.LLM.Model}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single-turn prompt and returns the trimmed answer.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   256,
	}

	var out chatResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return "", errors.Wrap(err, "llm request")
	}
	if resp.IsError() {
		if out.Error != nil {
			return "", errors.Errorf("llm: %s (%s)", out.Error.Message, resp.Status())
		}
		return "", errors.Errorf("llm: %s", resp.Status())
	}
	if len(out.Choices) == 0 {
		return "", errors.New("llm: empty response")
	}

	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	logger.Debug("[LLM] answer: %s", truncate(answer, 200))
	return answer, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
