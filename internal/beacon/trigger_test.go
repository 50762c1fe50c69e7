package beacon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesName(t *testing.T) {
	assert.True(t, MatchesName("SOS_BEACON", "SOS_BEACON"))
	assert.True(t, MatchesName("SOS_BEACON_01", "SOS_BEACON"))
	assert.False(t, MatchesName("", "SOS_BEACON"))
	assert.False(t, MatchesName("OTHER_DEVICE", "SOS_BEACON"))
}

func TestPayload(t *testing.T) {
	assert.Equal(t, "SOS_TRIGGER", string(Payload))
}
