// Package rag provides nearest-neighbor retrieval over a small read-only
// document index and an embedding client for queries.
package rag

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// Record is one retrievable document: its text plus arbitrary metadata.
type Record struct {
	Text string
	Meta map[string]any
}

// Match is a retrieval result with its cosine score against the query.
type Match struct {
	Record Record
	Score  float64
}

type metadataFile struct {
	Texts []string         `json:"texts"`
	Meta  []map[string]any `json:"meta"`
}

// Index holds the document embeddings in memory. The on-disk form is a
// gob-encoded [][]float32 alongside a JSON metadata file listing the
// parallel texts and meta objects.
type Index struct {
	vectors [][]float32
	records []Record
}

// LoadIndex reads the serialized embedding matrix and its metadata file.
// The two files must be parallel: one vector per text.
func LoadIndex(indexPath, metadataPath string, log *logrus.Logger) (*Index, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var vectors [][]float32
	if err := gob.NewDecoder(f).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", indexPath, err)
	}

	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta metadataFile
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", metadataPath, err)
	}
	if len(meta.Texts) != len(vectors) {
		return nil, fmt.Errorf("index/metadata mismatch: %d vectors, %d texts", len(vectors), len(meta.Texts))
	}

	records := make([]Record, len(meta.Texts))
	for i, t := range meta.Texts {
		records[i] = Record{Text: t}
		if i < len(meta.Meta) {
			records[i].Meta = meta.Meta[i]
		}
	}
	log.WithField("documents", len(records)).Info("retrieval index loaded")
	return &Index{vectors: vectors, records: records}, nil
}

// SaveIndex writes the embedding matrix in the on-disk gob form. Used by
// the index-building tooling and by tests.
func SaveIndex(indexPath string, vectors [][]float32) error {
	f, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(vectors)
}

// Len reports the number of indexed documents.
func (ix *Index) Len() int { return len(ix.records) }

// Search returns the k nearest records to the query vector by cosine
// similarity, best first.
func (ix *Index) Search(query []float32, k int) []Match {
	if len(ix.vectors) == 0 || len(query) == 0 || k <= 0 {
		return nil
	}
	matches := make([]Match, 0, len(ix.vectors))
	for i, v := range ix.vectors {
		matches = append(matches, Match{Record: ix.records[i], Score: Cosine(query, v)})
	}
	sort.SliceStable(matches, func(a, b int) bool { return matches[a].Score > matches[b].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-length inputs score zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
