// Package turn coordinates the listen-interpret-respond cycle: it drains
// the capture queue, feeds the recognizer, and enforces that at most one
// turn is in flight while speech output can always be barged in on.
package turn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/emergency"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/events"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/metrics"
	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/stt"
)

// State is the controller's position in the turn cycle.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

const (
	pauseCommand  = "stop listening"
	resumeCommand = "start listening"
)

// exitCommands end the session from the paused state.
var exitCommands = []string{"exit", "quit"}

// Speaker is the output side the controller drives.
type Speaker interface {
	Speak(text string)
	SpeakUrgent(text string)
	StopCurrent()
	IsSpeaking() bool
}

// Responder resolves a finalized utterance to speakable text.
type Responder interface {
	Respond(ctx context.Context, query string) string
}

// Beacon fires a best-effort background SOS attempt.
type Beacon interface {
	AttemptAsync()
}

// Controller runs the capture loop and owns the turn state machine.
type Controller struct {
	recognizer stt.Recognizer
	frames     <-chan []byte
	gate       *emergency.Gate
	responder  Responder
	speaker    Speaker
	beacon     Beacon
	hub        *events.Hub
	log        *logrus.Logger

	// ackDelay separates the urgent emergency acknowledgment from the
	// detailed guidance that follows.
	ackDelay time.Duration
	// pauseTimeout bounds the paused state; on expiry listening resumes
	// automatically so the user is never stuck muted.
	pauseTimeout time.Duration

	mu    sync.Mutex
	state State

	// processing is the single-flight turn lock. Second utterances are
	// dropped, never queued: a live voice interface must not pile up
	// stale requests.
	processing sync.Mutex
}

// NewController wires the turn pipeline. hub may be nil when no event
// consumers exist.
func NewController(recognizer stt.Recognizer, frames <-chan []byte, gate *emergency.Gate,
	responder Responder, speaker Speaker, beacon Beacon, hub *events.Hub, log *logrus.Logger) *Controller {
	if hub == nil {
		hub = events.NewHub()
	}
	metrics.Init()
	return &Controller{
		recognizer:   recognizer,
		frames:       frames,
		gate:         gate,
		responder:    responder,
		speaker:      speaker,
		beacon:       beacon,
		hub:          hub,
		log:          log,
		ackDelay:     time.Second,
		pauseTimeout: 30 * time.Second,
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.announceState(s)
}

// swapState transitions from a specific state only; it reports false when
// another path (such as the pause handler) already moved the controller
// elsewhere.
func (c *Controller) swapState(from, to State) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.mu.Unlock()
	c.announceState(to)
	return true
}

func (c *Controller) announceState(s State) {
	metrics.ControllerState.Set(float64(s))
	c.hub.Publish(events.New(events.KindState, s.String(), nil))
	c.log.WithField("state", s.String()).Debug("state changed")
}

// Run drains the capture queue until the context is cancelled, the frame
// source closes, or the user speaks an exit command from the paused state.
func (c *Controller) Run(ctx context.Context) error {
	c.setState(StateListening)
	defer c.setState(StateIdle)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-c.frames:
			if !ok {
				return nil
			}
			if !c.recognizer.Accept(frame) {
				continue
			}
			text := strings.TrimSpace(c.recognizer.Result())
			if text == "" {
				continue
			}
			c.log.WithField("text", text).Info("heard")
			c.hub.Publish(events.New(events.KindTranscript, text, nil))

			if strings.Contains(strings.ToLower(text), pauseCommand) {
				c.speaker.StopCurrent()
				c.speaker.Speak("Voice assistant paused.")
				if exit := c.pausedWait(ctx); exit {
					return nil
				}
				c.setState(StateListening)
				continue
			}

			// Barge-in: the user talking over the assistant always wins.
			if c.speaker.IsSpeaking() {
				c.log.Info("interrupting current response")
				metrics.BargeInsTotal.Inc()
				c.speaker.StopCurrent()
			}

			if !c.processing.TryLock() {
				c.log.WithField("text", text).Info("still processing previous request, dropping utterance")
				metrics.TurnsDropped.Inc()
				continue
			}
			go c.process(ctx, text)
		}
	}
}

// process handles one accepted utterance. It runs off the capture loop so
// new speech can still be observed (and barge in) while a response is
// being produced.
func (c *Controller) process(ctx context.Context, text string) {
	released := false
	release := func() {
		if !released {
			released = true
			c.processing.Unlock()
		}
	}
	defer release()
	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("turn processing panicked")
			c.speaker.Speak("I encountered an error. Please try again.")
			c.setState(StateListening)
		}
	}()

	c.setState(StateProcessing)
	metrics.TurnsTotal.Inc()
	turnID := uuid.NewString()

	if isEmergency, keyword := c.gate.Detect(text); isEmergency {
		c.log.WithFields(logrus.Fields{"keyword": keyword, "turn": turnID}).Warn("EMERGENCY DETECTED")
		metrics.EmergenciesTotal.WithLabelValues(keyword).Inc()
		c.hub.Publish(events.New(events.KindEmergency, text, map[string]any{"keyword": keyword, "turn": turnID}))

		// The acknowledgment goes through the synchronous urgent path so
		// nothing can cancel it before the user hears it.
		c.speaker.SpeakUrgent(fmt.Sprintf("Emergency detected: %s. Getting help now.", keyword))
		if c.beacon != nil {
			c.beacon.AttemptAsync()
		}
		time.Sleep(c.ackDelay)
	}

	reply := c.responder.Respond(ctx, text)
	c.hub.Publish(events.New(events.KindTurn, reply, map[string]any{"query": text, "turn": turnID}))

	// The pause handler may have taken the controller out of this turn
	// while the reply was being produced; a paused assistant stays silent.
	if !c.swapState(StateProcessing, StateSpeaking) {
		c.log.Info("controller left the processing state, discarding reply")
		return
	}
	c.speaker.Speak(reply)

	// Rendering is asynchronous, so the turn is over as far as admission
	// is concerned: release the lock now so a barge-in while this reply
	// is audible can claim the next turn instead of being dropped.
	release()

	// Track rendering so the reported state returns to listening when the
	// speech controller goes quiet (or was barged in on).
	for c.speaker.IsSpeaking() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(50 * time.Millisecond):
		}
	}
	if c.State() == StateSpeaking {
		c.setState(StateListening)
	}
}

// pausedWait holds the controller in the paused state, watching only for
// the resume phrase or an exit command. It fails open: after the pause
// timeout listening resumes automatically.
func (c *Controller) pausedWait(ctx context.Context) (exit bool) {
	c.setState(StatePaused)
	c.log.Infof("paused; say %q to resume (auto-resume in %s)", resumeCommand, c.pauseTimeout)

	timeout := time.NewTimer(c.pauseTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-timeout.C:
			c.log.Info("pause timeout reached, auto-resuming")
			return false
		case frame, ok := <-c.frames:
			if !ok {
				return true
			}
			if !c.recognizer.Accept(frame) {
				continue
			}
			text := strings.ToLower(strings.TrimSpace(c.recognizer.Result()))
			if text == "" {
				continue
			}
			if strings.Contains(text, resumeCommand) {
				c.log.Info("resuming voice assistant")
				c.speaker.Speak("Resuming.")
				return false
			}
			for _, cmd := range exitCommands {
				if strings.Contains(text, cmd) {
					c.log.Info("exit command received")
					return true
				}
			}
		}
	}
}
