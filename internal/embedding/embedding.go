package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// maxTextLength is the safe prompt size for the embeddings
	// endpoint; longer inputs are truncated at a sentence boundary
	// when one falls in the final 20% of the window.
	maxTextLength = 1000

	requestTimeout = 60 * time.Second

	// batchDelay throttles consecutive embedding calls so a long
	// ingestion does not overwhelm the backend.
	batchDelay = 100 * time.Millisecond
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeRe     = regexp.MustCompile(`[^\w\s.,!?;:\-()\[\]"']`)
)

// EmbeddingError reports that embedding failed after exhausting all
// retry attempts, carrying the last underlying cause.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// Client converts text to fixed-length vectors via the Ollama
// embeddings endpoint, with retry and exponential backoff.
type Client struct {
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client

	// sleep is swapped out in tests to observe backoff timing.
	sleep func(time.Duration)
}

// NewClient creates an embedding client for the given backend.
func NewClient(baseURL, model string, maxRetries int) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		maxRetries: maxRetries,
		httpClient: &http.Client{Timeout: requestTimeout},
		sleep:      time.Sleep,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns the embedding vector for text. The text is sanitized
// and length-capped before the request. On failure the call is retried
// with 2^attempt seconds of backoff; after maxRetries attempts it
// fails with an *EmbeddingError.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	cleaned := CleanText(text)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		vector, err := c.requestEmbedding(ctx, cleaned)
		if err == nil {
			return vector, nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("Embedding attempt failed")

		if attempt < c.maxRetries-1 {
			wait := time.Duration(1<<attempt) * time.Second
			log.Info().Dur("wait", wait).Msg("Retrying embedding request")
			c.sleep(wait)
		}
	}

	log.Error().Err(lastErr).Int("attempts", c.maxRetries).Msg("Failed to generate embedding")
	return nil, &EmbeddingError{Attempts: c.maxRetries, Err: lastErr}
}

// EmbedBatch embeds each text sequentially, pausing briefly between
// consecutive calls (not after the last). The first failure aborts the
// whole batch.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		if i%10 == 0 {
			log.Info().Int("chunk", i+1).Int("total", len(texts)).Msg("Generating embeddings")
		}
		vector, err := c.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)

		if i < len(texts)-1 {
			c.sleep(batchDelay)
		}
	}
	return vectors, nil
}

func (c *Client) requestEmbedding(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings request failed: %d, %s", resp.StatusCode, string(body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings response: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings response contained no vector")
	}
	return result.Embedding, nil
}

// CleanText sanitizes text for the embedding backend: whitespace runs
// collapse to a single space, characters outside the safe set become
// spaces, and the result is capped at maxTextLength characters,
// preferring a sentence boundary in the last 20% of the window.
func CleanText(text string) string {
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = unsafeRe.ReplaceAllString(text, " ")

	if len(text) > maxTextLength {
		text = text[:maxTextLength]
		if lastPeriod := strings.LastIndex(text, "."); lastPeriod > maxTextLength*8/10 {
			text = text[:lastPeriod+1]
		}
	}

	return strings.TrimSpace(text)
}
