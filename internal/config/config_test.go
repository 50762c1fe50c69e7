package config

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Setenv("HTTP_ADDRESS", "")
	os.Setenv("OLLAMA_MODEL", "")
	os.Setenv("SOS_KEYWORDS", "")
	cfg := Load(logrus.New())

	assert.Equal(t, ":8080", cfg.HTTPAddress)
	assert.Equal(t, "gemma3n:latest", cfg.OllamaModel)
	assert.Equal(t, 16000, cfg.SampleRate)
	assert.Equal(t, DefaultSOSKeywords, cfg.SOSKeywords)
	assert.Equal(t, DefaultHighUrgencyKeywords, cfg.HighUrgencyKeywords)
}

func TestLoad_KeywordOverride(t *testing.T) {
	os.Setenv("SOS_KEYWORDS", "Mayday, HELP ME ,")
	defer os.Unsetenv("SOS_KEYWORDS")
	cfg := Load(logrus.New())
	assert.Equal(t, []string{"mayday", "help me"}, cfg.SOSKeywords)
}

func TestLoad_InvalidNumberFallsBack(t *testing.T) {
	os.Setenv("SAMPLE_RATE", "not-a-number")
	defer os.Unsetenv("SAMPLE_RATE")
	cfg := Load(logrus.New())
	assert.Equal(t, 16000, cfg.SampleRate)
}
