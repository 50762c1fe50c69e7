// Package speech owns audible output: one active utterance at a time,
// interruptible mid-sentence, with the microphone gated off while speaking.
package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// maxChunkLen bounds a single rendering call so an interruption takes
// effect within one chunk's latency instead of the whole utterance.
const maxChunkLen = 1500

// stopTimeout bounds how long StopCurrent waits for the renderer to
// acknowledge the halt before force-clearing the speaking state.
const stopTimeout = 2 * time.Second

// urgentRateBoost is added to the configured rate for urgent announcements.
const urgentRateBoost = 30

// Renderer renders one piece of text to audible output. Render blocks
// until the audio has been played, the context is cancelled, or Halt is
// called. Implementations must make Halt take effect promptly.
type Renderer interface {
	Render(ctx context.Context, text string, rate int) error
	Halt()
}

type utteranceJob struct {
	cancel   context.CancelFunc
	done     chan struct{}
	renderer Renderer
}

// Controller serializes speech output. At most one rendering job exists at
// a time; starting a new one always cancels and bounded-waits for the
// previous one first.
type Controller struct {
	newRenderer func() (Renderer, error)
	rate        int
	log         *logrus.Logger

	// admit serializes the stop-then-start sequence end to end so two
	// concurrent Speak calls can never both observe no active job and
	// install overlapping renderings.
	admit sync.Mutex

	mu         sync.Mutex
	speaking   bool
	active     *utteranceJob
	onSpeaking func(bool)
	onChunk    func(d time.Duration)
}

// NewController builds a Controller. newRenderer is invoked once per
// utterance so a wedged renderer never poisons the next one.
func NewController(newRenderer func() (Renderer, error), rate int, log *logrus.Logger) *Controller {
	return &Controller{newRenderer: newRenderer, rate: rate, log: log}
}

// OnSpeakingChange registers a callback fired whenever the speaking state
// flips. It runs under the controller's lock and must not block; the audio
// capture layer uses it to drop mic frames at the source.
func (c *Controller) OnSpeakingChange(fn func(bool)) {
	c.mu.Lock()
	c.onSpeaking = fn
	c.mu.Unlock()
}

// OnChunkRendered registers an observer for per-chunk rendering duration.
func (c *Controller) OnChunkRendered(fn func(d time.Duration)) {
	c.mu.Lock()
	c.onChunk = fn
	c.mu.Unlock()
}

func (c *Controller) observeChunk(d time.Duration) {
	c.mu.Lock()
	fn := c.onChunk
	c.mu.Unlock()
	if fn != nil {
		fn(d)
	}
}

// IsSpeaking reports whether an utterance is currently being rendered.
func (c *Controller) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

func (c *Controller) setSpeakingLocked(on bool) {
	if c.speaking == on {
		return
	}
	c.speaking = on
	if c.onSpeaking != nil {
		c.onSpeaking(on)
	}
}

// Speak stops any in-flight utterance, then renders text asynchronously.
// Empty or whitespace text is a no-op. Returns without waiting for the
// rendering to finish.
func (c *Controller) Speak(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.admit.Lock()
	defer c.admit.Unlock()
	c.stopActive()

	r, err := c.newRenderer()
	if err != nil {
		c.log.WithError(err).Error("could not create speech renderer")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &utteranceJob{cancel: cancel, done: make(chan struct{}), renderer: r}

	c.mu.Lock()
	c.active = job
	c.setSpeakingLocked(true)
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			if c.active == job {
				c.active = nil
				c.setSpeakingLocked(false)
			}
			c.mu.Unlock()
			cancel()
			close(job.done)
		}()
		for _, chunk := range SplitChunks(text, maxChunkLen) {
			if ctx.Err() != nil {
				c.log.Debug("speech interrupted between chunks")
				return
			}
			start := time.Now()
			if err := r.Render(ctx, chunk, c.rate); err != nil {
				if ctx.Err() == nil {
					c.log.WithError(err).Warn("speech chunk failed")
				}
				return
			}
			c.observeChunk(time.Since(start))
		}
	}()
}

// SpeakUrgent stops any in-flight utterance and renders text synchronously
// at an increased rate. Used for the immediate emergency acknowledgment;
// because it blocks and is not registered as cancellable, a subsequent
// Speak cannot skip it.
func (c *Controller) SpeakUrgent(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.admit.Lock()
	defer c.admit.Unlock()
	c.stopActive()

	r, err := c.newRenderer()
	if err != nil {
		c.log.WithError(err).Error("could not create urgent speech renderer")
		return
	}

	c.mu.Lock()
	c.setSpeakingLocked(true)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.setSpeakingLocked(false)
		c.mu.Unlock()
	}()

	if err := r.Render(context.Background(), text, c.rate+urgentRateBoost); err != nil {
		c.log.WithError(err).Warn("urgent speech failed")
	}
}

// StopCurrent cancels the active utterance, asks its renderer to halt and
// waits up to stopTimeout for teardown. On timeout the speaking state is
// force-cleared so the microphone never stays gated on a stuck renderer;
// stale audio may still be audible briefly.
func (c *Controller) StopCurrent() {
	c.admit.Lock()
	defer c.admit.Unlock()
	c.stopActive()
}

func (c *Controller) stopActive() {
	c.mu.Lock()
	job := c.active
	c.mu.Unlock()
	if job == nil {
		return
	}

	job.cancel()
	job.renderer.Halt()

	select {
	case <-job.done:
	case <-time.After(stopTimeout):
		c.log.Warn("renderer did not acknowledge stop, force-clearing speaking state")
		c.mu.Lock()
		if c.active == job {
			c.active = nil
			c.setSpeakingLocked(false)
		}
		c.mu.Unlock()
	}
}

// SplitChunks splits text into pieces no longer than max, preferring
// sentence boundaries. Short text comes back as a single chunk.
func SplitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	var current strings.Builder
	for _, sentence := range strings.Split(text, ". ") {
		if current.Len() > 0 && current.Len()+len(sentence) >= max {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
		current.WriteString(sentence)
		current.WriteString(". ")
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		chunks = append(chunks, tail)
	}
	return chunks
}
