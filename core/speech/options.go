package speech

import "github.com/koscakluka/ema-access/core/utterance"

// FeedbackPlayer plays the non-speech part of a fragment.
type FeedbackPlayer interface {
	PlayEarcon(id string, rate, volume float64)
	PlayHaptic(id string)
}

// Ringer exposes the ringer stream so speech started while the device rings
// can be heard over it.
type Ringer interface {
	IsRinging() bool
	Volume() (current, max int)
	SetVolume(volume int)
}

// UtteranceListener observes utterances as they start and finish speaking.
type UtteranceListener interface {
	OnUtteranceStarted(index int64)
	OnUtteranceCompleted(index int64, status utterance.Status)
}

type ControllerOption func(*Controller)

// WithEngines sets the engine candidates in failover order.
func WithEngines(names ...string) ControllerOption {
	return func(c *Controller) {
		c.engines.candidates = append([]string(nil), names...)
	}
}

func WithFeedbackPlayer(player FeedbackPlayer) ControllerOption {
	return func(c *Controller) { c.player = player }
}

func WithRinger(ringer Ringer) ControllerOption {
	return func(c *Controller) { c.ringer = ringer }
}

func WithUtteranceListener(listener UtteranceListener) ControllerOption {
	return func(c *Controller) { c.listener = listener }
}

// WithVoice sets the default pitch and rate. Fragment parameters multiply
// these when intonation is enabled.
func WithVoice(pitch, rate float64) ControllerOption {
	return func(c *Controller) {
		if pitch > 0 {
			c.pitch = pitch
		}
		if rate > 0 {
			c.rate = rate
		}
	}
}

func WithIntonation(enabled bool) ControllerOption {
	return func(c *Controller) { c.intonation = enabled }
}

// WithVolume sets the speech volume in [0, 1].
func WithVolume(volume float64) ControllerOption {
	return func(c *Controller) { c.volume = min(max(volume, 0), 1) }
}

// WithFailureThreshold sets how many consecutive failures an engine gets
// before it is dropped.
func WithFailureThreshold(threshold int) ControllerOption {
	return func(c *Controller) {
		if threshold > 0 {
			c.failureThreshold = threshold
		}
	}
}

// WithSpeakingHook runs on the worker when speech starts after being idle.
func WithSpeakingHook(hook func()) ControllerOption {
	return func(c *Controller) { c.onSpeaking = hook }
}

// WithIdleHook runs on the worker once the queue drains, so held resources
// can be released.
func WithIdleHook(hook func()) ControllerOption {
	return func(c *Controller) { c.onIdle = hook }
}

// WithEngineAnnouncement queues a short announcement whenever an engine
// requested through [Controller.SetEngine] becomes ready.
func WithEngineAnnouncement(enabled bool) ControllerOption {
	return func(c *Controller) { c.announceEngine = enabled }
}
