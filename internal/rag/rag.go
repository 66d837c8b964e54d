package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-chat/internal/chromemdb"
	"pdf-chat/internal/chunker"
	"pdf-chat/internal/config"
	"pdf-chat/internal/embedding"
	"pdf-chat/internal/models"
	"pdf-chat/internal/parser"
)

// Retriever composes the chunker, embedding client and vector store
// into the ingestion and query pipeline.
type Retriever struct {
	chunker  *chunker.Chunker
	embedder *embedding.Client
	store    *chromemdb.Store
	cfg      *config.Config
}

func NewRetriever(ch *chunker.Chunker, embedder *embedding.Client, store *chromemdb.Store, cfg *config.Config) *Retriever {
	return &Retriever{chunker: ch, embedder: embedder, store: store, cfg: cfg}
}

// IngestFile extracts a document's pages, chunks them, embeds every
// chunk and submits the whole batch to the index in one call. A
// failure partway through aborts the ingestion for this file with no
// partial index state committed. Returns the number of chunks added.
func (r *Retriever) IngestFile(ctx context.Context, filePath string) (int, error) {
	pages, err := parser.ExtractPages(filePath)
	if err != nil {
		return 0, err
	}

	var chunks []models.Chunk
	for _, page := range pages {
		meta := models.ChunkMeta{
			Filename:   page.Filename,
			PageNumber: page.PageNumber,
			Filepath:   page.Filepath,
		}
		chunks = append(chunks, r.chunker.Chunk(page.Text, meta, r.cfg.ChunkSize, r.cfg.ChunkOverlap)...)
	}
	if len(chunks) == 0 {
		log.Warn().Str("file", filePath).Msg("No chunks generated from document")
		return 0, nil
	}
	log.Info().Int("chunks", len(chunks)).Str("file", filePath).Msg("Created chunks from document")

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", filePath, err)
	}

	if err := r.store.Add(ctx, chunks, vectors); err != nil {
		return 0, fmt.Errorf("failed to index %s: %w", filePath, err)
	}
	return len(chunks), nil
}

// SearchSimilar embeds the query and returns the top-ranked chunks.
// Empty or whitespace-only queries return no results without calling
// the embedding backend. Failures are logged and degrade to an empty
// result set so the chat flow stays available.
func (r *Retriever) SearchSimilar(ctx context.Context, query string) []models.SearchResult {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		log.Error().Err(err).Msg("Failed to embed query")
		return nil
	}

	return r.store.Search(ctx, vector, r.cfg.MaxContextChunks)
}

// Store exposes the underlying vector store for stats and deletion.
func (r *Retriever) Store() *chromemdb.Store { return r.store }

// FormatContext renders retrieved chunks into the context block handed
// to the chat model.
func FormatContext(results []models.SearchResult) string {
	if len(results) == 0 {
		return models.NoDocumentsFound
	}

	parts := make([]string, 0, len(results))
	for i, res := range results {
		parts = append(parts, fmt.Sprintf("Document %d [Source: %s, Page %d]:\n%s\n",
			i+1, res.Chunk.Filename, res.Chunk.PageNumber, res.Chunk.Text))
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt assembles the full prompt from the system prompt, the
// retrieved context and the user's question.
func BuildPrompt(query, context string) string {
	return fmt.Sprintf(models.AnswerPromptTemplate, models.SystemPrompt, context, query)
}
