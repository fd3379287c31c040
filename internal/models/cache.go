package models

import "time"

// ResumeCacheEntry caches extracted resume text keyed by content hash, so a
// candidate applying to several jobs only pays for extraction once.
type ResumeCacheEntry struct {
	ContentHash string    `json:"content_hash" badgerhold:"unique"`
	CandidateID string    `json:"candidate_id" badgerhold:"index"`
	FileName    string    `json:"file_name"`
	Text        string    `json:"text"`
	Truncated   bool      `json:"truncated"`
	ExtractedAt time.Time `json:"extracted_at"`
	// HitCount and LastAccessed track reuse for cache eviction decisions
	HitCount     int       `json:"hit_count"`
	LastAccessed time.Time `json:"last_accessed,omitempty"`
}

// EmbeddingCacheEntry caches a computed embedding vector keyed by the SHA-256
// of the embedded text plus the model name.
type EmbeddingCacheEntry struct {
	Key       string    `json:"key" badgerhold:"unique"`
	Model     string    `json:"model"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at"`
}
