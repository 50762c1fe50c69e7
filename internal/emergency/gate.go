// Package emergency scans transcribed speech for distress language.
package emergency

import "strings"

// Urgency classifies how a query should be framed for the responder.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyHigh
)

func (u Urgency) String() string {
	if u == UrgencyHigh {
		return "high"
	}
	return "low"
}

// Gate matches text against two keyword tiers: explicit distress phrases
// (checked first) and high-risk situational phrases. Scan order is the
// configured list order, so the first match is deterministic.
type Gate struct {
	sos         []string
	highUrgency []string
}

// NewGate builds a gate from the two keyword tiers. Keywords are compared
// lower-cased; the lists are copied so callers can't mutate them later.
func NewGate(sosKeywords, highUrgencyKeywords []string) *Gate {
	return &Gate{
		sos:         lowerCopy(sosKeywords),
		highUrgency: lowerCopy(highUrgencyKeywords),
	}
}

// Detect reports whether text contains a configured keyword and which one
// matched first. Explicit distress keywords take priority over the
// high-risk tier. No side effects; safe for concurrent use.
func (g *Gate) Detect(text string) (bool, string) {
	lower := strings.ToLower(text)
	for _, kw := range g.sos {
		if strings.Contains(lower, kw) {
			return true, kw
		}
	}
	for _, kw := range g.highUrgency {
		if strings.Contains(lower, kw) {
			return true, kw
		}
	}
	return false, ""
}

// Analyze derives the urgency level for prompt framing. Any keyword from
// either tier means high urgency.
func (g *Gate) Analyze(text string) Urgency {
	if ok, _ := g.Detect(text); ok {
		return UrgencyHigh
	}
	return UrgencyLow
}

func lowerCopy(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
