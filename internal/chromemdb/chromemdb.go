package chromemdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"pdf-chat/internal/helper"
	"pdf-chat/internal/models"
)

const (
	compress    = false
	chromemDir  = "chromem"
	catalogFile = "catalog.json"
)

// ErrDimensionMismatch is returned when a vector's dimensionality does
// not match vectors already stored in the collection.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// IndexError reports a storage-layer failure on a write path.
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %s failed: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// catalogRecord is one indexed chunk as tracked by the catalog.
type catalogRecord struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Tokens     int    `json:"tokens"`
	Filename   string `json:"filename"`
	PageNumber int    `json:"page_number"`
	Filepath   string `json:"filepath"`
}

type catalog struct {
	Dimension int             `json:"dimension"`
	Records   []catalogRecord `json:"records"`
}

// Store persists chunk vectors, metadata and raw text in a chromem-go
// collection. A JSON catalog beside the database tracks record ids and
// chunk fields, since chromem-go exposes no metadata-scan API; it also
// pins the embedding dimension for the lifetime of the collection.
type Store struct {
	db          *chromem.DB
	collection  *chromem.Collection
	name        string
	catalogPath string
	catalog     catalog

	// Batch-write entry point, replaceable in tests to simulate a
	// persistence failure mid-batch.
	addDocuments func(ctx context.Context, docs []chromem.Document) error
}

// NewStore opens (or creates) the persistent vector store under
// dataDir with the given collection name.
func NewStore(dataDir, collectionName string) (*Store, error) {
	if err := helper.CreateFolder(dataDir); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(dataDir, chromemDir), compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	s := &Store{
		db:          db,
		name:        collectionName,
		catalogPath: filepath.Join(dataDir, catalogFile),
	}
	s.addDocuments = func(ctx context.Context, docs []chromem.Document) error {
		return s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
	}

	if s.collection, err = s.getOrCreateCollection(); err != nil {
		return nil, err
	}
	s.loadCatalog()
	return s, nil
}

func (s *Store) getOrCreateCollection() (*chromem.Collection, error) {
	c, err := s.db.GetOrCreateCollection(s.name, map[string]string{"description": "PDF document chunks"}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}
	return c, nil
}

func (s *Store) loadCatalog() {
	data, err := os.ReadFile(s.catalogPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Msg("Failed to read catalog, starting empty")
		}
		return
	}
	if err := json.Unmarshal(data, &s.catalog); err != nil {
		log.Warn().Err(err).Msg("Catalog corrupted, starting empty")
		s.catalog = catalog{}
	}
}

func (s *Store) saveCatalog() error {
	data, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.catalogPath, data, 0o644)
}

// Add stores chunks with their embedding vectors, generating a unique
// id per record. The insert is all-or-nothing: any failure leaves no
// partial state observable.
func (s *Store) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		log.Warn().Msg("No chunks to add to vector store")
		return nil
	}
	if len(chunks) != len(vectors) {
		return &IndexError{Op: "add", Err: fmt.Errorf("got %d chunks but %d vectors", len(chunks), len(vectors))}
	}

	dim := s.catalog.Dimension
	if dim == 0 {
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return &IndexError{Op: "add", Err: ErrDimensionMismatch}
		}
	}

	docs := make([]chromem.Document, len(chunks))
	records := make([]catalogRecord, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		id, err := helper.GenerateUUID()
		if err != nil {
			return &IndexError{Op: "add", Err: err}
		}
		ids[i] = id
		docs[i] = chromem.Document{
			ID:      id,
			Content: chunk.Text,
			Metadata: map[string]string{
				"filename":    chunk.Filename,
				"page_number": strconv.Itoa(chunk.PageNumber),
				"filepath":    chunk.Filepath,
				"tokens":      strconv.Itoa(chunk.Tokens),
			},
			Embedding: vectors[i],
		}
		records[i] = catalogRecord{
			ID:         id,
			Text:       chunk.Text,
			Tokens:     chunk.Tokens,
			Filename:   chunk.Filename,
			PageNumber: chunk.PageNumber,
			Filepath:   chunk.Filepath,
		}
	}

	if err := s.addDocuments(ctx, docs); err != nil {
		// chromem inserts each document before persisting it, so a
		// failed batch can leave earlier documents behind. Remove them.
		if delErr := s.collection.Delete(ctx, nil, nil, ids...); delErr != nil {
			log.Error().Err(delErr).Msg("Failed to roll back collection write")
		}
		return &IndexError{Op: "add", Err: err}
	}

	s.catalog.Dimension = dim
	s.catalog.Records = append(s.catalog.Records, records...)
	if err := s.saveCatalog(); err != nil {
		// Roll the collection write back so no partial insert remains.
		s.catalog.Records = s.catalog.Records[:len(s.catalog.Records)-len(records)]
		if delErr := s.collection.Delete(ctx, nil, nil, ids...); delErr != nil {
			log.Error().Err(delErr).Msg("Failed to roll back collection write")
		}
		return &IndexError{Op: "add", Err: err}
	}

	log.Info().Int("chunks", len(chunks)).Msg("Added chunks to vector store")
	return nil
}

// Search returns up to k chunks ordered by descending similarity.
// Internal failures are logged, not raised: retrieval degrades to an
// empty result rather than crashing the chat flow.
func (s *Store) Search(ctx context.Context, vector []float32, k int) []models.SearchResult {
	if k <= 0 {
		return nil
	}
	count := s.collection.Count()
	if count == 0 {
		return nil
	}
	if k > count {
		k = count
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, k, nil, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to search vector store")
		return nil
	}

	similar := make([]models.SearchResult, 0, len(results))
	for _, res := range results {
		similar = append(similar, models.SearchResult{
			Chunk:      chunkFromResult(res),
			Similarity: res.Similarity,
		})
	}
	log.Info().Int("results", len(similar)).Msg("Found similar chunks for query")
	return similar
}

func chunkFromResult(res chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(res.Metadata["page_number"])
	tokens, _ := strconv.Atoi(res.Metadata["tokens"])
	return models.Chunk{
		Text:       res.Content,
		Tokens:     tokens,
		Filename:   res.Metadata["filename"],
		PageNumber: page,
		Filepath:   res.Metadata["filepath"],
	}
}

// Count returns the total number of indexed records.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Stats describes the collection for display.
type Stats struct {
	TotalChunks int    `json:"total_chunks"`
	Collection  string `json:"collection_name"`
}

func (s *Store) Stats() Stats {
	return Stats{TotalChunks: s.Count(), Collection: s.name}
}

// GetByFilename returns the stored chunks (without vectors) for a
// given file. Failures degrade to an empty result.
func (s *Store) GetByFilename(filename string) []models.Chunk {
	var chunks []models.Chunk
	for _, rec := range s.catalog.Records {
		if rec.Filename != filename {
			continue
		}
		chunks = append(chunks, models.Chunk{
			Text:       rec.Text,
			Tokens:     rec.Tokens,
			Filename:   rec.Filename,
			PageNumber: rec.PageNumber,
			Filepath:   rec.Filepath,
		})
	}
	return chunks
}

// DeleteByFilename removes every record whose filename matches,
// returning the number removed. A non-nil error with a non-zero count
// means the records are gone from the collection but the on-disk
// catalog could not be rewritten and is stale until the next write.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	var kept []catalogRecord
	matched := 0
	for _, rec := range s.catalog.Records {
		if rec.Filename == filename {
			matched++
		} else {
			kept = append(kept, rec)
		}
	}
	if matched == 0 {
		return 0, nil
	}

	if err := s.collection.Delete(ctx, map[string]string{"filename": filename}, nil); err != nil {
		return 0, &IndexError{Op: "delete", Err: err}
	}

	s.catalog.Records = kept
	if err := s.saveCatalog(); err != nil {
		return matched, &IndexError{Op: "delete", Err: fmt.Errorf("catalog not saved after delete: %w", err)}
	}
	log.Info().Int("deleted", matched).Str("filename", filename).Msg("Deleted chunks for file")
	return matched, nil
}

// Clear drops all records, reinitializing the collection to empty.
func (s *Store) Clear() error {
	if err := s.db.DeleteCollection(s.name); err != nil {
		return &IndexError{Op: "clear", Err: err}
	}
	c, err := s.getOrCreateCollection()
	if err != nil {
		return &IndexError{Op: "clear", Err: err}
	}
	s.collection = c

	s.catalog = catalog{}
	if err := s.saveCatalog(); err != nil {
		return &IndexError{Op: "clear", Err: err}
	}
	log.Info().Str("collection", s.name).Msg("Cleared collection")
	return nil
}
