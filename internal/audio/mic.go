// Package audio owns microphone capture: fixed-size PCM16LE frames pushed
// into a queue the turn controller drains at its own pace.
package audio

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// queueDepth bounds the frame queue. The producer never blocks: when the
// consumer falls this far behind, frames are dropped and counted instead.
const queueDepth = 256

// Mic captures mono int16 audio from the default input device. While the
// gate reports speaking, frames are dropped at the source so the system
// cannot hear its own voice.
type Mic struct {
	sampleRate int
	blockSize  int
	gate       func() bool
	log        *logrus.Logger

	frames  chan []byte
	stream  *portaudio.Stream
	dropped atomic.Int64
}

// NewMic builds a Mic. gate returns true while capture must be suppressed
// (the speech controller is rendering); it is polled per frame and must be
// cheap.
func NewMic(sampleRate, blockSize int, gate func() bool, log *logrus.Logger) *Mic {
	if gate == nil {
		gate = func() bool { return false }
	}
	return &Mic{
		sampleRate: sampleRate,
		blockSize:  blockSize,
		gate:       gate,
		log:        log,
		frames:     make(chan []byte, queueDepth),
	}
}

// Frames is the consumer side of the capture queue.
func (m *Mic) Frames() <-chan []byte { return m.frames }

// Dropped reports how many frames were discarded due to a slow consumer.
// Frames suppressed by the speaking gate are not counted; dropping those is
// the intended behavior, not a fault.
func (m *Mic) Dropped() int64 { return m.dropped.Load() }

// Start opens the default input stream and begins capture.
func (m *Mic) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.sampleRate), m.blockSize, m.onFrame)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	m.stream = stream
	m.log.WithFields(logrus.Fields{
		"sample_rate": m.sampleRate,
		"block_size":  m.blockSize,
	}).Info("microphone capture started")
	return nil
}

// Stop halts capture and releases the audio device.
func (m *Mic) Stop() {
	if m.stream != nil {
		_ = m.stream.Stop()
		_ = m.stream.Close()
		m.stream = nil
	}
	portaudio.Terminate()
	m.log.Info("microphone capture stopped")
}

// onFrame is the capture callback. It must never block.
func (m *Mic) onFrame(in []int16) {
	if m.gate() {
		return
	}
	buf := pcmBytes(in)
	select {
	case m.frames <- buf:
	default:
		if n := m.dropped.Add(1); n%100 == 1 {
			m.log.WithField("dropped", n).Warn("capture queue full, dropping frames")
		}
	}
}

// pcmBytes converts int16 samples to little-endian PCM bytes, the layout
// the recognizer consumes.
func pcmBytes(in []int16) []byte {
	buf := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
