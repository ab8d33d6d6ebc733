// Package dictionary looks up English words and glosses them in the
// target language through the fast translation channel.
package dictionary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lecture-interpreter/internal/observability/logging"
	"lecture-interpreter/internal/observability/metrics"
	"lecture-interpreter/internal/service/translate"
)

const (
	NoDefinition   = "No definition."
	NoExample      = "No example."
	NoPartOfSpeech = "N/A"
)

var trailingPunct = regexp.MustCompile(`[.,?!:;]+$`)

// Entry is the first meaning of a word with its translated gloss.
type Entry struct {
	Word         string `json:"word"`
	Phonetic     string `json:"phonetic"`
	PartOfSpeech string `json:"partOfSpeech"`
	DefinitionEN string `json:"definitionEn"`
	DefinitionZH string `json:"definitionZh"`
	ExampleEN    string `json:"exampleEn"`
	ExampleZH    string `json:"exampleZh"`
}

// Config holds dictionary client configuration.
type Config struct {
	APIURL     string
	TargetLang string
	Timeout    time.Duration
}

type Client struct {
	apiURL     string
	targetLang string
	translator translate.FastTranslator
	httpClient *http.Client
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// New creates a client. translator may be nil, in which case entries carry
// no translated gloss.
func New(cfg Config, translator translate.FastTranslator) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.dictionaryapi.dev/api/v2/entries/en"
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "ZH"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		targetLang: cfg.TargetLang,
		translator: translator,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		metrics:    metrics.DefaultMetrics,
		log:        logging.WithComponent("dictionary"),
	}
}

// CleanWord strips trailing punctuation and lowercases a word picked from a
// transcript.
func CleanWord(word string) string {
	return strings.ToLower(trailingPunct.ReplaceAllString(strings.TrimSpace(word), ""))
}

type apiEntry struct {
	Word      string `json:"word"`
	Phonetic  string `json:"phonetic"`
	Phonetics []struct {
		Text string `json:"text"`
	} `json:"phonetics"`
	Meanings []struct {
		PartOfSpeech string `json:"partOfSpeech"`
		Definitions  []struct {
			Definition string `json:"definition"`
			Example    string `json:"example"`
		} `json:"definitions"`
	} `json:"meanings"`
}

// Lookup returns the first meaning of word, or nil when the dictionary
// does not know it.
func (c *Client) Lookup(ctx context.Context, word string) (*Entry, error) {
	word = CleanWord(word)
	if word == "" {
		c.metrics.RecordDictionaryLookup("not_found")
		return nil, nil
	}

	raw, err := c.fetch(ctx, word)
	if err != nil {
		c.metrics.RecordDictionaryLookup("error")
		return nil, err
	}
	if raw == nil {
		c.metrics.RecordDictionaryLookup("not_found")
		return nil, nil
	}

	entry := &Entry{
		Word:         raw.Word,
		Phonetic:     raw.Phonetic,
		PartOfSpeech: NoPartOfSpeech,
		DefinitionEN: NoDefinition,
		ExampleEN:    NoExample,
	}
	if entry.Phonetic == "" {
		for _, p := range raw.Phonetics {
			if p.Text != "" {
				entry.Phonetic = p.Text
				break
			}
		}
	}
	var definition, example string
	if len(raw.Meanings) > 0 {
		m := raw.Meanings[0]
		if m.PartOfSpeech != "" {
			entry.PartOfSpeech = m.PartOfSpeech
		}
		if len(m.Definitions) > 0 {
			definition, example = m.Definitions[0].Definition, m.Definitions[0].Example
		}
	}
	if definition != "" {
		entry.DefinitionEN = definition
	}
	if example != "" {
		entry.ExampleEN = example
	}

	c.gloss(ctx, entry, definition, example)
	c.metrics.RecordDictionaryLookup("found")
	return entry, nil
}

func (c *Client) fetch(ctx context.Context, word string) (*apiEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/"+url.PathEscape(word), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dictionary API error: %s", resp.Status)
	}

	var entries []apiEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// gloss translates the definition and example concurrently. A failed
// translation leaves a placeholder; the entry is still returned.
func (c *Client) gloss(ctx context.Context, entry *Entry, definition, example string) {
	if c.translator == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entry.DefinitionZH = c.translateOne(gctx, definition)
		return nil
	})
	g.Go(func() error {
		entry.ExampleZH = c.translateOne(gctx, example)
		return nil
	})
	_ = g.Wait()
}

func (c *Client) translateOne(ctx context.Context, text string) string {
	if text == "" {
		return ""
	}
	out, err := c.translator.Translate(ctx, text, c.targetLang)
	switch {
	case errors.Is(err, translate.ErrRateLimited):
		return translate.PlaceholderQuota
	case err != nil:
		c.log.Warn().Err(err).Msg("Gloss translation failed")
		return translate.PlaceholderError
	case strings.TrimSpace(out) == "":
		return translate.PlaceholderPending
	}
	return out
}
