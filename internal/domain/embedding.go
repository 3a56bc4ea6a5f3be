package domain

import "time"

// EmbeddedRecord is the (text, vector, metadata) triple stored in the vector store.
type EmbeddedRecord struct {
	ID         string    `json:"id"          db:"id"`
	Code       string    `json:"icd_code"    db:"icd_code"`
	Position   int       `json:"position"    db:"position"`
	Title      string    `json:"title"       db:"title"`
	BrowserURL string    `json:"browser_url" db:"browser_url"`
	SourceFile string    `json:"source_file" db:"source_file"`
	Synonyms   []string  `json:"synonyms"    db:"synonyms"`
	Content    string    `json:"content"     db:"content"`
	Vector     []float32 `json:"vector,omitempty" db:"vector"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// SimilarRecord is returned by semantic search, including similarity score.
type SimilarRecord struct {
	EmbeddedRecord
	Similarity float64 `json:"similarity"`
}
