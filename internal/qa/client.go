// Package qa answers natural-language questions about a table through an
// OpenAI-compatible chat completions endpoint.
package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/insights/internal/apperr"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "meta-llama/llama-3.1-8b-instruct"
	DefaultTimeout = 60 * time.Second

	systemPrompt = "You are a data assistant. Answer questions based on the provided dataset."

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("question answering is not configured")

// Asker answers a question about a rendered table sample.
type Asker interface {
	Ask(ctx context.Context, sample, question string) (string, error)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	APIKey    string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// Client is an Asker backed by a chat completions API.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	timeout   time.Duration
	maxTokens int
	http      *http.Client
}

// NewClient returns a Client for cfg. It fails with ErrDisabled when
// cfg.APIKey is empty. A nil httpClient selects http.DefaultClient.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrDisabled
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    cfg.APIKey,
		model:     strings.TrimSpace(cfg.Model),
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		http:      httpClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Model returns the model questions are sent to.
func (c *Client) Model() string {
	return c.model
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// Ask sends the sample and question and returns the model's answer.
// Every failure, including a timeout, wraps apperr.ErrExternalService.
func (c *Client) Ask(ctx context.Context, sample, question string) (string, error) {
	answer, err := c.ask(ctx, sample, question)
	if err != nil {
		return "", apperr.External("qa", "ask", err)
	}
	return answer, nil
}

func (c *Client) ask(ctx context.Context, sample, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(completionRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: Prompt(sample, question)},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("request timed out after %s: %w", c.timeout, context.DeadlineExceeded)
		}
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, errorMessage(body))
	}
	return parseAnswer(body)
}

// Prompt builds the user message for question over sample.
func Prompt(sample, question string) string {
	return fmt.Sprintf("Here is the dataset:\n%s\n\nQuestion: %s", sample, question)
}

func parseAnswer(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", errors.New("malformed response: invalid JSON")
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return "", fmt.Errorf("service error: %s", msg.String())
	}

	choices := gjson.GetBytes(body, "choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return "", errors.New("malformed response: no choices")
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", errors.New("malformed response: choice has no message content")
	}
	answer := strings.TrimSpace(content.String())
	if answer == "" {
		return "", errors.New("empty answer")
	}
	return answer, nil
}

// errorMessage extracts a readable reason from an error response body.
func errorMessage(body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return msg.String()
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "no body"
	}
	return s
}
