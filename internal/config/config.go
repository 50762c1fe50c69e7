package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default keyword tiers for crisis detection. Overridable via env as
// comma-separated lists.
var (
	DefaultSOSKeywords = []string{"sos", "help me", "emergency", "urgent", "critical", "mayday"}

	DefaultHighUrgencyKeywords = []string{
		"bleeding", "blood", "stuck", "trapped", "drowning", "fire", "burning",
		"can't breathe", "chest pain", "unconscious", "choking", "severe pain",
		"broken bone", "head injury", "allergic reaction", "poisoned", "dying",
	}
)

// Config holds application configuration.
type Config struct {
	HTTPAddress string
	LogLevel    string

	// Speech recognition
	VoskModelPath string
	SampleRate    int
	BlockSize     int

	// Knowledge base
	RAGIndexPath    string
	RAGMetadataPath string
	FAQPath         string

	// Generation endpoint
	OllamaBaseURL string
	OllamaModel   string
	EmbedModel    string

	// Speech output
	TTSRate   int
	TTSVolume float64

	// Crisis detection
	SOSKeywords         []string
	HighUrgencyKeywords []string

	// SOS beacon
	BLEDeviceName     string
	BLECharacteristic string

	// Optional event broker
	AMQPURL      string
	AMQPExchange string
}

// Load reads environment variables and returns Config with sane defaults.
func Load(log *logrus.Logger) Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}

	cfg := Config{
		HTTPAddress:         getenv("HTTP_ADDRESS", ":8080"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
		VoskModelPath:       getenv("VOSK_MODEL_PATH", "models/vosk-model-small-en-us-0.15"),
		SampleRate:          getenvInt(log, "SAMPLE_RATE", 16000),
		BlockSize:           getenvInt(log, "BLOCK_SIZE", 8000),
		RAGIndexPath:        getenv("RAG_INDEX_PATH", "data/rag_index.gob"),
		RAGMetadataPath:     getenv("RAG_METADATA_PATH", "data/rag_metadata.json"),
		FAQPath:             getenv("FAQ_PATH", "data/emergency_faq.json"),
		OllamaBaseURL:       getenv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:         getenv("OLLAMA_MODEL", "gemma3n:latest"),
		EmbedModel:          getenv("EMBED_MODEL", "nomic-embed-text"),
		TTSRate:             getenvInt(log, "TTS_RATE", 150),
		TTSVolume:           getenvFloat(log, "TTS_VOLUME", 0.9),
		SOSKeywords:         getenvList("SOS_KEYWORDS", DefaultSOSKeywords),
		HighUrgencyKeywords: getenvList("HIGH_URGENCY_KEYWORDS", DefaultHighUrgencyKeywords),
		BLEDeviceName:       getenv("BLE_DEVICE_NAME", "SOS_BEACON"),
		BLECharacteristic:   getenv("BLE_CHARACTERISTIC_UUID", "12345678-1234-1234-1234-123456789abc"),
		AMQPURL:             os.Getenv("AMQP_URL"),
		AMQPExchange:        getenv("AMQP_EXCHANGE", "crisis.events"),
	}

	if _, err := os.Stat(cfg.VoskModelPath); err != nil {
		log.Warnf("VOSK_MODEL_PATH %s not found - speech recognition will not start", cfg.VoskModelPath)
	}
	if cfg.AMQPURL == "" {
		log.Info("AMQP_URL not set - event publishing disabled")
	}

	log.WithFields(logrus.Fields{
		"http_address": cfg.HTTPAddress,
		"ollama":       cfg.OllamaBaseURL,
		"model":        cfg.OllamaModel,
	}).Info("configuration loaded")
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(log *logrus.Logger, key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("invalid %s=%q, using default %d", key, v, def)
		return def
	}
	return n
}

func getenvFloat(log *logrus.Logger, key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Warnf("invalid %s=%q, using default %v", key, v, def)
		return def
	}
	return f
}

func getenvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.ToLower(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
