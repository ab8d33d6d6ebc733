// Package llm is a client for OpenAI-compatible chat completion APIs
// (DeepSeek by default), used for AI-enhanced translation, note summaries,
// topic vocabulary and word explanations.
package llm

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
)

const (
	defaultAPIURL = "https://api.deepseek.com/chat/completions"
	defaultModel  = "deepseek-chat"
)

// ErrEmptyResponse is returned when the API answers without content.
var ErrEmptyResponse = errors.New("no content in chat response")

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Options tunes a single completion.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Config holds configuration for the chat client.
type Config struct {
	APIURL  string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a chat completions endpoint.
type Client struct {
	apiURL     string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a chat client.
func New(cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiURL:     apiURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
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

// Complete sends messages and returns the first choice's content, trimmed.
func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	chatMsgs := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		chatMsgs = append(chatMsgs, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    chatMsgs,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat API error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// TranslateSentence produces the AI-enhanced translation of a lecture
// sentence, biased toward the course topic.
func (c *Client) TranslateSentence(ctx context.Context, topic, text string) (string, error) {
	out, err := c.Complete(ctx, []Message{
		{Role: "system", Content: TranslationSystemPrompt},
		{Role: "user", Content: TranslationUserPrompt(topic, text)},
	}, Options{Temperature: 0.1})
	if err != nil {
		return "", fmt.Errorf("failed to translate sentence: %w", err)
	}
	return trimQuotes(out), nil
}

// Summarize turns accumulated lecture notes into a study summary.
func (c *Client) Summarize(ctx context.Context, topic, text string) (string, error) {
	out, err := c.Complete(ctx, []Message{
		{Role: "user", Content: SummaryPrompt(topic, text)},
	}, Options{Temperature: 0.5})
	if err != nil {
		return "", fmt.Errorf("failed to summarize notes: %w", err)
	}
	return out, nil
}

// TopicTerms asks for the core vocabulary of a course, used as
// recognition phrase hints.
func (c *Client) TopicTerms(ctx context.Context, topic string) ([]string, error) {
	out, err := c.Complete(ctx, []Message{
		{Role: "user", Content: TopicTermsPrompt(topic)},
	}, Options{Temperature: 0.5, MaxTokens: 1024})
	if err != nil {
		return nil, fmt.Errorf("failed to generate topic terms: %w", err)
	}

	terms := ParseTerms(out)
	if len(terms) == 0 {
		return nil, ErrEmptyResponse
	}
	return terms, nil
}

// Explain gives the contextual meaning of a word within a lecture sentence.
func (c *Client) Explain(ctx context.Context, topic, word, sentence string) (string, error) {
	out, err := c.Complete(ctx, []Message{
		{Role: "user", Content: ExplainPrompt(topic, word, sentence)},
	}, Options{Temperature: 0.3})
	if err != nil {
		return "", fmt.Errorf("failed to explain word: %w", err)
	}
	return out, nil
}

// ParseTerms splits a "|"-separated term list.
func ParseTerms(s string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == '\n' }) {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		key := strings.ToLower(term)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}
	return terms
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}} {
		if len(s) > len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			return strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
		}
	}
	return s
}
