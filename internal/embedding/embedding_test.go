package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, maxRetries int) (*Client, *[]time.Duration) {
	c := NewClient(url, "nomic-embed-text", maxRetries)
	var sleeps []time.Duration
	c.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	return c, &sleeps
}

func embeddingHandler(t *testing.T, vector []float32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		json.NewEncoder(w).Encode(embedResponse{Embedding: vector})
	}
}

func TestEmbedSuccess(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(t, []float32{0.1, 0.2, 0.3}))
	defer srv.Close()

	c, sleeps := newTestClient(srv.URL, 3)
	vector, err := c.Embed(context.Background(), "hello world")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)
	assert.Empty(t, *sleeps, "no backoff on first-attempt success")
}

func TestEmbedRetriesWithBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "backend overloaded", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{1, 2}})
	}))
	defer srv.Close()

	c, sleeps := newTestClient(srv.URL, 3)
	vector, err := c.Embed(context.Background(), "some text")

	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vector)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestEmbedExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 3)
	_, err := c.Embed(context.Background(), "some text")

	require.Error(t, err)
	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, 3, embErr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEmbedMalformedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding": []}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 2)
	_, err := c.Embed(context.Background(), "some text")

	var embErr *EmbeddingError
	require.ErrorAs(t, err, &embErr)
}

func TestEmbedBatchThrottles(t *testing.T) {
	srv := httptest.NewServer(embeddingHandler(t, []float32{0.5}))
	defer srv.Close()

	c, sleeps := newTestClient(srv.URL, 3)
	vectors, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})

	require.NoError(t, err)
	assert.Len(t, vectors, 3)
	// A delay between consecutive calls, none after the last.
	assert.Equal(t, []time.Duration{batchDelay, batchDelay}, *sleeps)
}

func TestEmbedBatchAbortsOnFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float32{0.5}})
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 1)
	_, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.Error(t, err)
}

func TestCleanTextCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CleanText("a\t\tb \n\n c"))
}

func TestCleanTextStripsUnsafeCharacters(t *testing.T) {
	got := CleanText("hello @#$% world's (fine), [ok] \"quoted\" — done!")
	assert.NotContains(t, got, "@")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "$")
	assert.NotContains(t, got, "%")
	assert.Contains(t, got, "world's")
	assert.Contains(t, got, "(fine),")
	assert.Contains(t, got, "[ok]")
	assert.Contains(t, got, "\"quoted\"")
	assert.Contains(t, got, "done!")
}

func TestCleanTextCapsLength(t *testing.T) {
	long := strings.Repeat("x", 2000)
	got := CleanText(long)
	assert.LessOrEqual(t, len(got), 1000)
}

func TestCleanTextTruncatesAtSentenceBoundary(t *testing.T) {
	// A period lands inside the final 20% of the 1000-char window, so
	// truncation must end on it instead of cutting mid-sentence.
	head := strings.Repeat("a", 890) + ". "
	tail := strings.Repeat("b", 500)
	got := CleanText(head + tail)

	assert.True(t, strings.HasSuffix(got, "."), "expected sentence-boundary truncation, got suffix %q", got[len(got)-10:])
	assert.LessOrEqual(t, len(got), 1000)
}

func TestCleanTextNoBoundaryInWindow(t *testing.T) {
	// No period in the last 20%: plain hard cut at the limit.
	got := CleanText(strings.Repeat("a", 1500))
	assert.Equal(t, 1000, len(got))
}
