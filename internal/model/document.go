package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DocStatus represents the processing state of an ingested document.
type DocStatus string

const (
	DocStatusUnprocessed   DocStatus = "unprocessed"
	DocStatusProcessed     DocStatus = "processed"
	DocStatusUnprocessable DocStatus = "unprocessable"
	DocStatusDuplicate     DocStatus = "duplicate"
)

// Document is a normalized article or report handed off by the ingestion
// layer. Content is immutable after creation; only Status and CanonicalID
// are mutated by the pipeline.
type Document struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	SourceURL   string    `json:"source_url"`
	SourceHost  string    `json:"source_host"`
	PublishedAt time.Time `json:"published_at"`
	Status      DocStatus `json:"status"`
	// CanonicalID points at the earliest-published duplicate when Status is
	// "duplicate"; empty otherwise.
	CanonicalID string    `json:"canonical_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NormalizeText applies NFKC normalization, lowercases, and collapses
// whitespace so hashing and similarity comparisons are stable across
// source-specific formatting.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// HashContent returns the sha256 hex digest of the normalized content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(NormalizeText(content)))
	return hex.EncodeToString(sum[:])
}
