package speech

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRenderer renders by sleeping and honors cancellation and Halt.
type fakeRenderer struct {
	renderDur  time.Duration
	ignoreHalt bool

	mu       sync.Mutex
	halted   chan struct{}
	haltOnce sync.Once

	active   int32
	rendered []string
	rates    []int
}

func newFakeRenderer(d time.Duration) *fakeRenderer {
	return &fakeRenderer{renderDur: d, halted: make(chan struct{})}
}

func (f *fakeRenderer) Render(ctx context.Context, text string, rate int) error {
	if atomic.AddInt32(&f.active, 1) > 1 {
		atomic.AddInt32(&f.active, -1)
		return errors.New("concurrent render detected")
	}
	defer atomic.AddInt32(&f.active, -1)

	f.mu.Lock()
	f.rendered = append(f.rendered, text)
	f.rates = append(f.rates, rate)
	f.mu.Unlock()

	if f.ignoreHalt {
		// Simulates a wedged renderer: ignores both Halt and cancellation.
		time.Sleep(f.renderDur)
		return nil
	}
	select {
	case <-time.After(f.renderDur):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-f.halted:
		return context.Canceled
	}
}

func (f *fakeRenderer) Halt() {
	if f.ignoreHalt {
		return
	}
	f.haltOnce.Do(func() { close(f.halted) })
}

func (f *fakeRenderer) renderedTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.rendered...)
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestSpeak_EmptyIsNoop(t *testing.T) {
	created := 0
	c := NewController(func() (Renderer, error) {
		created++
		return newFakeRenderer(time.Millisecond), nil
	}, 150, quietLogger())

	c.Speak("   ")
	c.Speak("")
	assert.Zero(t, created)
	assert.False(t, c.IsSpeaking())
}

func TestSpeak_RendersAndClearsSpeaking(t *testing.T) {
	r := newFakeRenderer(5 * time.Millisecond)
	c := NewController(func() (Renderer, error) { return r, nil }, 150, quietLogger())

	var gated atomic.Bool
	c.OnSpeakingChange(func(on bool) { gated.Store(on) })

	c.Speak("hello there")
	require.Eventually(t, func() bool { return len(r.renderedTexts()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, gated.Load())

	require.Eventually(t, func() bool { return !c.IsSpeaking() }, time.Second, time.Millisecond)
	assert.False(t, gated.Load())
}

func TestSpeak_SecondCallStopsFirst(t *testing.T) {
	first := newFakeRenderer(time.Minute)
	second := newFakeRenderer(5 * time.Millisecond)
	renderers := []Renderer{first, second}
	idx := 0
	c := NewController(func() (Renderer, error) {
		r := renderers[idx]
		idx++
		return r, nil
	}, 150, quietLogger())

	c.Speak("first utterance")
	require.Eventually(t, func() bool { return len(first.renderedTexts()) == 1 }, time.Second, time.Millisecond)

	// The second call must not return until the first acknowledged stop,
	// and the two renderings must never overlap.
	c.Speak("second utterance")
	require.Eventually(t, func() bool { return len(second.renderedTexts()) == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !c.IsSpeaking() }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"second utterance"}, second.renderedTexts())
}

// overlapRenderer counts renderings that observe another rendering in
// flight, across every renderer instance sharing the counters.
type overlapRenderer struct {
	active   *int32
	overlaps *int32
}

func (r *overlapRenderer) Render(ctx context.Context, _ string, _ int) error {
	if atomic.AddInt32(r.active, 1) > 1 {
		atomic.AddInt32(r.overlaps, 1)
	}
	defer atomic.AddInt32(r.active, -1)
	select {
	case <-time.After(2 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *overlapRenderer) Halt() {}

func TestSpeak_ConcurrentCallersNeverOverlapRenderings(t *testing.T) {
	var active, overlaps int32
	c := NewController(func() (Renderer, error) {
		// Real construction probes for the synthesis binary; give the
		// stop-then-start window measurable width.
		time.Sleep(200 * time.Microsecond)
		return &overlapRenderer{active: &active, overlaps: &overlaps}, nil
	}, 150, quietLogger())

	for i := 0; i < 50; i++ {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				c.Speak("overlap check")
			}()
		}
		close(start)
		wg.Wait()
		c.StopCurrent()
	}
	assert.Zero(t, atomic.LoadInt32(&overlaps), "two renderings ran concurrently")
}

func TestStopCurrent_ForceClearsOnStuckRenderer(t *testing.T) {
	stuck := newFakeRenderer(time.Hour)
	stuck.ignoreHalt = true
	c := NewController(func() (Renderer, error) { return stuck, nil }, 150, quietLogger())

	c.Speak("will wedge")
	require.Eventually(t, func() bool { return c.IsSpeaking() }, time.Second, time.Millisecond)

	start := time.Now()
	c.StopCurrent()
	elapsed := time.Since(start)

	// Bounded wait: roughly the stop timeout, then fail open.
	assert.GreaterOrEqual(t, elapsed, stopTimeout)
	assert.Less(t, elapsed, stopTimeout+time.Second)
	assert.False(t, c.IsSpeaking())
}

func TestSpeakUrgent_SynchronousAtBoostedRate(t *testing.T) {
	r := newFakeRenderer(time.Millisecond)
	c := NewController(func() (Renderer, error) { return r, nil }, 150, quietLogger())

	c.SpeakUrgent("emergency detected")
	// Synchronous: by the time the call returns the text was rendered.
	require.Equal(t, []string{"emergency detected"}, r.renderedTexts())
	assert.Equal(t, []int{150 + urgentRateBoost}, r.rates)
	assert.False(t, c.IsSpeaking())
}

func TestSpeak_RendererConstructionFailureIsNonFatal(t *testing.T) {
	c := NewController(func() (Renderer, error) { return nil, errors.New("no tts") }, 150, quietLogger())
	c.Speak("hello")
	c.SpeakUrgent("hello")
	assert.False(t, c.IsSpeaking())
}

func TestSplitChunks(t *testing.T) {
	assert.Equal(t, []string{"short text"}, SplitChunks("short text", 1500))

	long := strings.Repeat("This is a sentence. ", 200) // ~4000 chars
	chunks := SplitChunks(long, 1500)
	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(ch), 1500)
		assert.NotEmpty(t, ch)
	}
}
