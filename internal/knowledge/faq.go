// Package knowledge holds the curated FAQ consulted before any model call.
package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Entry is one hand-authored keyword-to-answer mapping.
type Entry struct {
	Keywords []string `json:"keywords"`
	Response string   `json:"response"`
}

type faqFile struct {
	FAQs []Entry `json:"faqs"`
}

// Store is the read-only curated FAQ, loaded once at startup.
type Store struct {
	entries []Entry
	log     *logrus.Logger
}

// matchThreshold is the minimum keyword-overlap score for a curated answer.
const matchThreshold = 0.3

// LoadStore reads the FAQ JSON file ({"faqs":[{keywords,response}]}).
func LoadStore(path string, log *logrus.Logger) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read faq file: %w", err)
	}
	var f faqFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse faq file %s: %w", path, err)
	}
	log.WithField("entries", len(f.FAQs)).Info("emergency FAQ loaded")
	return &Store{entries: f.FAQs, log: log}, nil
}

// Len reports the number of curated entries.
func (s *Store) Len() int { return len(s.entries) }

// Match scores every entry by the fraction of its keywords present in the
// query and returns the best response when that fraction exceeds 0.3.
// Replacement uses a strict greater-than, so between equally scored entries
// the one scanned first wins.
func (s *Store) Match(query string) (string, bool) {
	lower := strings.ToLower(query)

	var best *Entry
	bestScore := 0.0
	for i := range s.entries {
		e := &s.entries[i]
		if len(e.Keywords) == 0 {
			continue
		}
		hits := 0
		for _, kw := range e.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		score := float64(hits) / float64(len(e.Keywords))
		if score > bestScore && score > matchThreshold {
			bestScore = score
			best = e
		}
	}
	if best == nil {
		return "", false
	}
	return best.Response, true
}
