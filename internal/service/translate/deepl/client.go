// Package deepl is the fast-channel translation backend.
package deepl

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

	"golang.org/x/time/rate"

	"lecture-interpreter/internal/service/translate"
)

// DeepL answers 456 when the account's character quota is used up.
const statusQuotaExceeded = 456

// ErrNoAuthKey is returned when no API key is configured.
var ErrNoAuthKey = errors.New("deepl: auth key not configured")

// Config holds DeepL client configuration.
type Config struct {
	APIURL            string
	AuthKey           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client calls the DeepL v2 translate endpoint. Requests are paced by a
// token bucket so bursts of interim translations stay under the API's
// request rate.
type Client struct {
	apiURL     string
	authKey    string
	limiter    *rate.Limiter
	httpClient *http.Client
}

func New(cfg Config) *Client {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api-free.deepl.com/v2/translate"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiURL:     apiURL,
		authKey:    cfg.AuthKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

type translateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// Translate implements translate.FastTranslator. An empty string is returned
// when DeepL answers without translations. Quota responses wrap
// translate.ErrRateLimited.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if c.authKey == "" {
		return "", ErrNoAuthKey
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("deepl: rate limiter: %w", err)
	}

	body, err := json.Marshal(translateRequest{Text: []string{text}, TargetLang: targetLang})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+c.authKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == statusQuotaExceeded:
		return "", fmt.Errorf("deepl: status %d: %w", resp.StatusCode, translate.ErrRateLimited)
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("deepl API error: %s - %s", resp.Status, strings.TrimSpace(string(respBody)))
	}

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Translations) == 0 {
		return "", nil
	}
	return out.Translations[0].Text, nil
}
