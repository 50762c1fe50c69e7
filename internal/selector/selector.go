// Package selector decides how a query gets answered: curated FAQ first,
// then retrieval-augmented generation, then free-form generation. It always
// hands back speakable text, never an error.
package selector

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/emergency"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/rag"
)

// similarityThreshold is the minimum cosine score between the query
// embedding and the matched document's re-embedding for the document to be
// injected as generation context.
const similarityThreshold = 0.65

// topK candidates are fetched from the index; only the best one is used.
const topK = 3

const apology = "I encountered an error. Please try again."

const unreachable = "I cannot reach the guidance engine right now. " +
	"If this is a life-threatening emergency, call your local emergency number immediately."

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// FAQ is the curated keyword-matched answer store.
type FAQ interface {
	Match(query string) (string, bool)
}

// Retriever returns the k nearest indexed documents for a query vector.
type Retriever interface {
	Search(query []float32, k int) []rag.Match
}

// Selector resolves a query to spoken text.
type Selector struct {
	gate     *emergency.Gate
	faq      FAQ
	index    Retriever
	embedder rag.Embedder
	gen      Generator
	log      *logrus.Logger

	// onLatency, when set, observes how long a resolution took.
	onLatency func(d time.Duration)
}

// New constructs a Selector. index and embedder may be nil when the
// retrieval index is unavailable; the selector then skips straight from the
// FAQ to free-form generation.
func New(gate *emergency.Gate, faq FAQ, index Retriever, embedder rag.Embedder, gen Generator, log *logrus.Logger) *Selector {
	return &Selector{gate: gate, faq: faq, index: index, embedder: embedder, gen: gen, log: log}
}

// OnLatency registers an observer for resolution latency.
func (s *Selector) OnLatency(fn func(d time.Duration)) { s.onLatency = fn }

// Respond resolves the query and always returns non-empty speakable text.
// Failures along the way degrade to the next source and, at the end, to a
// spoken apology; nothing propagates to the caller.
func (s *Selector) Respond(ctx context.Context, query string) string {
	start := time.Now()
	defer func() {
		if s.onLatency != nil {
			s.onLatency(time.Since(start))
		}
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		return apology
	}

	if s.faq != nil {
		if resp, ok := s.faq.Match(query); ok {
			s.log.WithField("source", "faq").Debug("query resolved")
			return CleanForSpeech(resp)
		}
	}

	docContext := s.retrieveContext(ctx, query)
	prompt := s.buildPrompt(query, docContext)

	reply, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.log.WithError(err).Warn("generation failed")
		return unreachable
	}
	cleaned := CleanForSpeech(reply)
	if cleaned == "" {
		return apology
	}
	source := "generate"
	if docContext != "" {
		source = "rag"
	}
	s.log.WithField("source", source).Debug("query resolved")
	return cleaned
}

// retrieveContext embeds the query, fetches the top candidate and accepts
// it only if the cosine similarity against the document's own re-embedding
// clears the threshold. Re-embedding the document costs one extra call but
// catches stale index scores before the text reaches a crisis prompt.
func (s *Selector) retrieveContext(ctx context.Context, query string) string {
	if s.index == nil || s.embedder == nil {
		return ""
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.log.WithError(err).Warn("query embedding failed, skipping retrieval")
		return ""
	}
	matches := s.index.Search(queryVec, topK)
	if len(matches) == 0 {
		return ""
	}
	best := matches[0]
	docVec, err := s.embedder.Embed(ctx, best.Record.Text)
	if err != nil {
		s.log.WithError(err).Warn("document re-embedding failed, skipping retrieval")
		return ""
	}
	sim := rag.Cosine(queryVec, docVec)
	if !acceptSimilarity(sim) {
		s.log.WithField("similarity", sim).Debug("retrieval below threshold")
		return ""
	}
	s.log.WithField("similarity", sim).Debug("retrieval accepted")
	return best.Record.Text
}

// acceptSimilarity reports whether a re-embedding score qualifies the
// document as generation context. Strictly greater: a score exactly at
// the threshold is rejected.
func acceptSimilarity(sim float64) bool { return sim > similarityThreshold }

const promptPreamble = `You are CRISIS-AI, an offline emergency assistant. Respond in 50-150 words with 3-6 numbered steps.

RULES:
- Start with most life-threatening issue first
- Use simple, clear language for audio output
- Give actionable steps only
- No disclaimers or long explanations`

// buildPrompt assembles the deterministic generation prompt: preamble,
// urgency banner, optional context block, literal query.
func (s *Selector) buildPrompt(query, docContext string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	if s.gate.Analyze(query) == emergency.UrgencyHigh {
		b.WriteString("\nHIGH URGENCY - Person may be in immediate danger!")
	} else {
		b.WriteString("\nProvide practical safety steps.")
	}
	if strings.TrimSpace(docContext) != "" {
		b.WriteString("\n\nRELEVANT INFO:\n")
		b.WriteString(docContext)
		b.WriteString("\n")
	}
	b.WriteString("\n\nUSER EMERGENCY: ")
	b.WriteString(query)
	b.WriteString("\n\nRespond with numbered steps:")
	return b.String()
}

var speechReplacer = strings.NewReplacer(
	"**", "",
	"*", "",
	"⚠️", "Warning:",
	"🚨", "Emergency:",
	"✅", "Step:",
	"❌", "Error:",
)

// CleanForSpeech strips markdown markers and symbols the renderer would
// mispronounce and collapses whitespace.
func CleanForSpeech(text string) string {
	cleaned := speechReplacer.Replace(text)
	return strings.Join(strings.Fields(cleaned), " ")
}
