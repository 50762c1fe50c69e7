package selector

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/emergency"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/rag"
)

type fakeFAQ struct {
	resp string
	ok   bool
}

func (f fakeFAQ) Match(string) (string, bool) { return f.resp, f.ok }

type fakeGen struct {
	reply      string
	err        error
	lastPrompt string
}

func (f *fakeGen) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeRetriever struct{ matches []rag.Match }

func (f fakeRetriever) Search([]float32, int) []rag.Match { return f.matches }

// fakeEmbedder returns a fixed vector per text so similarity is controllable.
type fakeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (f fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func testGate() *emergency.Gate {
	return emergency.NewGate([]string{"help me"}, []string{"trapped", "fire"})
}

func TestRespond_FAQWins(t *testing.T) {
	gen := &fakeGen{reply: "generated"}
	s := New(testGate(), fakeFAQ{resp: "**canned** answer", ok: true}, nil, nil, gen, logrus.New())
	out := s.Respond(context.Background(), "how do I treat a burn")
	assert.Equal(t, "canned answer", out)
	assert.Empty(t, gen.lastPrompt, "generator must not be invoked on FAQ hit")
}

func TestRespond_RAGContextAccepted(t *testing.T) {
	doc := "apply direct pressure to the wound"
	gen := &fakeGen{reply: "1. Press on it."}
	emb := fakeEmbedder{vecs: map[string][]float32{doc: {1, 0}}}
	idx := fakeRetriever{matches: []rag.Match{{Record: rag.Record{Text: doc}, Score: 0.9}}}
	s := New(testGate(), fakeFAQ{}, idx, emb, gen, logrus.New())

	out := s.Respond(context.Background(), "deep cut on my arm")
	assert.Equal(t, "1. Press on it.", out)
	assert.Contains(t, gen.lastPrompt, "RELEVANT INFO:")
	assert.Contains(t, gen.lastPrompt, doc)
}

func TestRespond_RAGBelowThresholdFallsThrough(t *testing.T) {
	doc := "unrelated document"
	gen := &fakeGen{reply: "free-form"}
	// orthogonal vectors: similarity 0, below 0.65
	emb := fakeEmbedder{vecs: map[string][]float32{doc: {0, 1}}}
	idx := fakeRetriever{matches: []rag.Match{{Record: rag.Record{Text: doc}, Score: 0.2}}}
	s := New(testGate(), fakeFAQ{}, idx, emb, gen, logrus.New())

	out := s.Respond(context.Background(), "what's the weather")
	assert.Equal(t, "free-form", out)
	assert.NotContains(t, gen.lastPrompt, "RELEVANT INFO:")
}

func TestAcceptSimilarity_BoundaryIsExclusive(t *testing.T) {
	assert.False(t, acceptSimilarity(0.65), "a score exactly at the threshold must not qualify")
	assert.False(t, acceptSimilarity(0.649))
	assert.True(t, acceptSimilarity(0.651))
}

func TestRespond_EmbedderFailureSkipsRetrieval(t *testing.T) {
	gen := &fakeGen{reply: "free-form"}
	emb := fakeEmbedder{err: errors.New("embed down")}
	idx := fakeRetriever{matches: []rag.Match{{Record: rag.Record{Text: "doc"}, Score: 0.9}}}
	s := New(testGate(), fakeFAQ{}, idx, emb, gen, logrus.New())

	assert.Equal(t, "free-form", s.Respond(context.Background(), "anything"))
}

func TestRespond_GenerationFailureIsLegible(t *testing.T) {
	gen := &fakeGen{err: errors.New("connection refused")}
	s := New(testGate(), fakeFAQ{}, nil, nil, gen, logrus.New())
	out := s.Respond(context.Background(), "what now")
	require.NotEmpty(t, out)
	assert.NotContains(t, out, "connection refused")
	assert.Contains(t, out, "emergency number")
}

func TestRespond_EmptyQuery(t *testing.T) {
	s := New(testGate(), fakeFAQ{}, nil, nil, &fakeGen{reply: "x"}, logrus.New())
	assert.NotEmpty(t, s.Respond(context.Background(), "   "))
}

func TestBuildPrompt_UrgencyBanner(t *testing.T) {
	s := New(testGate(), nil, nil, nil, &fakeGen{}, logrus.New())

	high := s.buildPrompt("I'm trapped under rubble", "")
	assert.Contains(t, high, "HIGH URGENCY")
	assert.True(t, strings.HasSuffix(high, "Respond with numbered steps:"))
	assert.Contains(t, high, "USER EMERGENCY: I'm trapped under rubble")

	low := s.buildPrompt("how to purify water", "boil it")
	assert.Contains(t, low, "Provide practical safety steps.")
	assert.Contains(t, low, "RELEVANT INFO:\nboil it")
}

func TestCleanForSpeech(t *testing.T) {
	in := "**Step 1** ⚠️ stay   calm\n\n* move away"
	assert.Equal(t, "Step 1 Warning: stay calm move away", CleanForSpeech(in))
}
