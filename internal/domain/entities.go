package domain

import "time"

// Index is a named, independently queryable collection of documents.
type Index struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Documents   []Document `json:"documents"`
	Stats       IndexStats `json:"stats"`
}

// IndexStats aggregates the documents and chunks of an index.
type IndexStats struct {
	TotalDocuments int   `json:"total_documents"`
	TotalChunks    int   `json:"total_chunks"`
	TotalSizeBytes int64 `json:"total_size_bytes"`
}

// ComputeStats derives stats from a document list.
func ComputeStats(docs []Document) IndexStats {
	var stats IndexStats
	for _, doc := range docs {
		stats.TotalDocuments++
		stats.TotalChunks += len(doc.Chunks)
		stats.TotalSizeBytes += doc.Size
	}
	return stats
}

// Document is an ingested file. Its chunks are owned inline.
type Document struct {
	ID         string            `json:"id"`
	Filename   string            `json:"filename"`
	Size       int64             `json:"size"`
	Chunks     []Chunk           `json:"chunks"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	UploadedAt time.Time         `json:"uploaded_at"`
}

// Chunk is the atomic unit of retrieval. Embedding is nil when the
// embedder was unavailable for this chunk.
type Chunk struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Embedding []float32     `json:"embedding,omitempty"`
	Metadata  ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries the chunk position and a non-owning reference
// back to the document.
type ChunkMetadata struct {
	ChunkIndex int               `json:"chunk_index"`
	DocumentID string            `json:"document_id"`
	WordCount  int               `json:"word_count"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// IndexSummary is one row of ListIndexes.
type IndexSummary struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Stats       IndexStats `json:"stats"`
}

// IndexInfo is an IndexSummary plus its documents.
type IndexInfo struct {
	IndexSummary
	Documents []DocumentSummary `json:"documents"`
}

// DocumentSummary describes a document without its chunk bodies.
type DocumentSummary struct {
	ID         string            `json:"id"`
	Filename   string            `json:"filename"`
	Size       int64             `json:"size"`
	UploadedAt time.Time         `json:"uploaded_at"`
	ChunkCount int               `json:"chunk_count"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AddResult is returned by a successful document ingestion.
type AddResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Embedded   int    `json:"embedded"`
	Size       int64  `json:"size"`
}

// ScoredID is a chunk reference ranked by a retrieval component.
type ScoredID struct {
	ChunkID string
	Score   float64
}

// QueryMode selects which retrieval components answer a query.
type QueryMode string

const (
	ModeLexical QueryMode = "lexical"
	ModeVector  QueryMode = "vector"
	ModeHybrid  QueryMode = "hybrid"
)

// Valid reports whether m is a known mode.
func (m QueryMode) Valid() bool {
	switch m {
	case ModeLexical, ModeVector, ModeHybrid:
		return true
	}
	return false
}

// QueryResult is one ranked chunk in a query response.
type QueryResult struct {
	Text         string            `json:"text"`
	Score        float64           `json:"score"`
	DocumentName string            `json:"document_name"`
	DocumentID   string            `json:"document_id"`
	ChunkID      string            `json:"chunk_id"`
	ChunkIndex   int               `json:"chunk_index"`
	IndexName    string            `json:"index"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// QueryResponse is the answer to a query.
type QueryResponse struct {
	Query        string        `json:"query"`
	Mode         QueryMode     `json:"mode"`
	Results      []QueryResult `json:"results"`
	TotalResults int           `json:"total_results"`
}

// MultiQueryResponse is the merged answer of a query over several indexes.
// MissingIndexes lists requested names that did not exist.
type MultiQueryResponse struct {
	Query          string        `json:"query"`
	Mode           QueryMode     `json:"mode"`
	Indexes        []string      `json:"indexes"`
	MissingIndexes []string      `json:"missing_indexes,omitempty"`
	Results        []QueryResult `json:"results"`
	TotalResults   int           `json:"total_results"`
}
