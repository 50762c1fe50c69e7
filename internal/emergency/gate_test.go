package emergency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestGate() *Gate {
	return NewGate(
		[]string{"sos", "help me", "emergency"},
		[]string{"bleeding", "trapped", "fire"},
	)
}

func TestDetect_TierOrder(t *testing.T) {
	g := newTestGate()
	cases := []struct {
		name string
		in   string
		hit  bool
		kw   string
	}{
		{"explicit_first", "help me I'm trapped", true, "help me"},
		{"high_risk_only", "my leg is trapped under debris", true, "trapped"},
		{"case_insensitive", "SOS we need assistance", true, "sos"},
		{"list_order_within_tier", "there is a fire and someone is bleeding", true, "bleeding"},
		{"no_match", "what's the weather", false, ""},
		{"empty", "", false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hit, kw := g.Detect(tc.in)
			assert.Equal(t, tc.hit, hit)
			assert.Equal(t, tc.kw, kw)
		})
	}
}

func TestAnalyze(t *testing.T) {
	g := newTestGate()
	assert.Equal(t, UrgencyHigh, g.Analyze("there is a fire"))
	assert.Equal(t, UrgencyHigh, g.Analyze("please help me"))
	assert.Equal(t, UrgencyLow, g.Analyze("how do I purify water"))
	assert.Equal(t, "high", UrgencyHigh.String())
	assert.Equal(t, "low", UrgencyLow.String())
}
