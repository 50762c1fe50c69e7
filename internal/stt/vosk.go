// Package stt wraps the offline speech recognizer. The engine consumes
// 16-bit little-endian mono PCM frames and signals when an utterance has
// been finalized.
package stt

import (
	"encoding/json"
	"fmt"
	"os"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/sirupsen/logrus"
)

// Recognizer is the minimal incremental decoding interface the turn
// controller needs: feed a frame, learn whether an utterance finalized,
// then read the transcript.
type Recognizer interface {
	// Accept feeds one PCM frame and reports whether the engine finalized
	// an utterance on this frame.
	Accept(frame []byte) bool
	// Result returns the finalized transcript (may be empty for silence).
	Result() string
	// Partial returns the running transcript of the in-flight utterance.
	Partial() string
	Close()
}

// VoskRecognizer decodes speech with a local vosk model.
type VoskRecognizer struct {
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
	log   *logrus.Logger
}

type voskResult struct {
	Text string `json:"text"`
}

type voskPartial struct {
	Partial string `json:"partial"`
}

// NewVoskRecognizer loads the model from modelPath. A missing model is a
// startup failure, not something to silently degrade around.
func NewVoskRecognizer(modelPath string, sampleRate int, log *logrus.Logger) (*VoskRecognizer, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("vosk model not found at %s: %w", modelPath, err)
	}
	vosk.SetLogLevel(-1)
	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("create vosk recognizer: %w", err)
	}
	log.WithField("model", modelPath).Info("vosk recognizer initialized")
	return &VoskRecognizer{model: model, rec: rec, log: log}, nil
}

// Accept feeds one PCM16LE frame to the decoder.
func (r *VoskRecognizer) Accept(frame []byte) bool {
	return r.rec.AcceptWaveform(frame) != 0
}

// Result parses the finalized transcript out of the engine's JSON result.
func (r *VoskRecognizer) Result() string {
	var res voskResult
	if err := json.Unmarshal([]byte(r.rec.Result()), &res); err != nil {
		r.log.WithError(err).Warn("unparseable recognizer result")
		return ""
	}
	return res.Text
}

// Partial returns the running transcript for the current utterance.
func (r *VoskRecognizer) Partial() string {
	var res voskPartial
	if err := json.Unmarshal([]byte(r.rec.PartialResult()), &res); err != nil {
		return ""
	}
	return res.Partial
}

// Close frees the native recognizer and model.
func (r *VoskRecognizer) Close() {
	r.rec.Free()
	r.model.Free()
}
