package models

// PageText is the text of a single document page with its provenance.
type PageText struct {
	Text       string
	PageNumber int
	Filename   string
	Filepath   string
}

// ChunkMeta carries the provenance attached verbatim to every chunk
// produced from a page.
type ChunkMeta struct {
	Filename   string
	PageNumber int
	Filepath   string
}

// Chunk represents a bounded span of document text, the unit of
// embedding and retrieval.
type Chunk struct {
	Text       string
	Tokens     int
	Filename   string
	PageNumber int
	Filepath   string
}

// SearchResult is a chunk retrieved for a query, ranked by similarity.
type SearchResult struct {
	Chunk      Chunk
	Similarity float32
}
