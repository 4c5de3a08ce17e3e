// Package ingest turns source documents into embedded, indexed chunks.
// Extraction produces a flat sequence of blocks carrying page and section
// hints, the chunker merges those into overlapping windows sized by a
// per-document-type profile, and the pipeline embeds and upserts the
// result, optionally maintaining the BM25 corpus alongside.
package ingest

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunk is one indexable span of a document.
type Chunk struct {
	DocID     string
	Filename  string
	ChunkID   string
	Text      string
	PageStart int
	PageEnd   int
	Section   string
	CharStart int
	CharEnd   int
}

// Result summarizes one completed ingest.
type Result struct {
	DocID            string  `json:"doc_id"`
	Filename         string  `json:"filename"`
	Namespace        string  `json:"namespace"`
	ChunksUpserted   int     `json:"chunks_upserted"`
	Pages            int     `json:"pages"`
	DocType          string  `json:"doc_type"`
	ChunkChars       int     `json:"chunk_chars"`
	OverlapChars     int     `json:"overlap_chars"`
	ExtractionMethod string  `json:"extraction_method"`
	ElapsedS         float64 `json:"elapsed_s"`
}

// StableDocID derives a document id from the raw file bytes, so the same
// file always maps to the same id regardless of its name or upload path.
func StableDocID(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func sha1Text(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

var (
	spaceRunRE   = regexp.MustCompile(`[ \t]+`)
	newlineRunRE = regexp.MustCompile(`\n{3,}`)
)

// normalizeWS canonicalizes newlines, collapses space runs and trims the
// ends. Chunk text and extracted blocks both pass through here so hashes
// stay stable across extraction quirks.
func normalizeWS(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = spaceRunRE.ReplaceAllString(s, " ")
	s = newlineRunRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
