package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// EspeakRenderer synthesizes text with the espeak binary and plays the
// resulting WAV through the default output device. One renderer serves one
// utterance; Halt kills the synthesis process and clears the speaker.
type EspeakRenderer struct {
	volume float64
	log    *logrus.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	halted bool
}

// NewEspeakRenderer verifies the espeak binary is available. volume is in
// [0,1] and maps onto espeak's 0-200 amplitude scale.
func NewEspeakRenderer(volume float64, log *logrus.Logger) (*EspeakRenderer, error) {
	if _, err := exec.LookPath("espeak"); err != nil {
		return nil, fmt.Errorf("espeak not available: %w", err)
	}
	return &EspeakRenderer{volume: volume, log: log}, nil
}

// Render synthesizes text at the given words-per-minute rate and blocks
// until playback completes, the context is cancelled, or Halt is called.
func (r *EspeakRenderer) Render(ctx context.Context, text string, rate int) error {
	r.mu.Lock()
	if r.halted {
		r.mu.Unlock()
		return context.Canceled
	}
	amplitude := int(r.volume * 200)
	if amplitude > 200 {
		amplitude = 200
	}
	cmd := exec.CommandContext(ctx, "espeak", "--stdout",
		"-s", strconv.Itoa(rate),
		"-a", strconv.Itoa(amplitude),
		text)
	r.cmd = cmd
	r.mu.Unlock()

	wavBytes, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("espeak: %w", err)
	}

	streamer, format, err := wav.Decode(bytes.NewReader(wavBytes))
	if err != nil {
		return fmt.Errorf("decode espeak wav: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Halt stops synthesis and playback immediately. Subsequent Render calls
// on this renderer refuse to start.
func (r *EspeakRenderer) Halt() {
	r.mu.Lock()
	r.halted = true
	cmd := r.cmd
	r.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	speaker.Clear()
}
