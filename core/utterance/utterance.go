// Package utterance defines the unit of scheduled feedback: ordered fragments
// of speech with the earcons, haptics and parameter overrides that go with
// them.
package utterance

import (
	"strings"

	"github.com/jinzhu/copier"
)

// QueueMode tells the speech controller how an utterance relates to whatever
// is already speaking.
type QueueMode int

const (
	// QueueModeInterrupt flushes current speech unless an uninterruptible
	// utterance holds the floor.
	QueueModeInterrupt QueueMode = iota
	// QueueModeQueue appends after everything already queued.
	QueueModeQueue
	// QueueModeUninterruptible flushes current speech and blocks interrupts
	// until it completes.
	QueueModeUninterruptible
)

func (m QueueMode) String() string {
	switch m {
	case QueueModeInterrupt:
		return "interrupt"
	case QueueModeQueue:
		return "queue"
	case QueueModeUninterruptible:
		return "uninterruptible"
	default:
		return "unknown"
	}
}

// ParseQueueMode accepts the names returned by [QueueMode.String].
func ParseQueueMode(name string) (QueueMode, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "interrupt":
		return QueueModeInterrupt, true
	case "queue":
		return QueueModeQueue, true
	case "uninterruptible":
		return QueueModeUninterruptible, true
	default:
		return QueueModeInterrupt, false
	}
}

type Flag uint32

const (
	// FlagNoHistory keeps the utterance out of the repeat/spell history.
	FlagNoHistory Flag = 0x2
	// FlagDuringRecognition marks feedback produced while a recognizer is
	// listening.
	FlagDuringRecognition Flag = 0x4
	// FlagAdvanceContinuousReading asks continuous reading to move on once
	// this utterance is spoken.
	FlagAdvanceContinuousReading Flag = 0x8
	// FlagNoSpeech plays earcons and haptics but never reaches the engine.
	FlagNoSpeech Flag = 0x10
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagNoHistory, "no_history"},
	{FlagDuringRecognition, "during_recognition"},
	{FlagAdvanceContinuousReading, "advance_continuous_reading"},
	{FlagNoSpeech, "no_speech"},
}

func (f Flag) Has(flag Flag) bool {
	return f&flag == flag
}

func (f Flag) String() string {
	if f == 0 {
		return "none"
	}

	var names []string
	for _, entry := range flagNames {
		if f.Has(entry.flag) {
			names = append(names, entry.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseFlag accepts the names used by [Flag.String] for a single flag.
func ParseFlag(name string) (Flag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, entry := range flagNames {
		if entry.name == name {
			return entry.flag, true
		}
	}
	return 0, false
}

// Status is reported to completion callbacks.
type Status int

const (
	StatusError Status = iota + 1
	StatusSpeaking
	StatusInterrupted
	StatusSpoken
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "error"
	case StatusSpeaking:
		return "speaking"
	case StatusInterrupted:
		return "interrupted"
	case StatusSpoken:
		return "spoken"
	default:
		return "unknown"
	}
}

// CompletionFunc is called exactly once when an utterance leaves the speech
// controller.
type CompletionFunc func(status Status)

// Utterance is one unit of feedback. The zero value is an empty utterance in
// QueueModeInterrupt.
type Utterance struct {
	Fragments []Fragment
	Mode      QueueMode
	Flags     Flag

	// Index is assigned by the speech controller when the utterance is
	// accepted. It is zero until then.
	Index int64

	OnComplete CompletionFunc `copier:"-"`
}

// New creates a single-fragment utterance.
func New(text string, mode QueueMode) Utterance {
	return Utterance{
		Fragments: []Fragment{{Text: text}},
		Mode:      mode,
	}
}

// Text joins the text of all fragments with a single space.
func (u Utterance) Text() string {
	parts := make([]string, 0, len(u.Fragments))
	for _, fragment := range u.Fragments {
		if text := strings.TrimSpace(fragment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// HasFeedback reports whether any fragment carries text, earcons or haptics.
func (u Utterance) HasFeedback() bool {
	for _, fragment := range u.Fragments {
		if strings.TrimSpace(fragment.Text) != "" || len(fragment.Earcons) > 0 || len(fragment.Haptics) > 0 {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares nothing with u. The completion
// callback is carried over by reference.
func (u Utterance) Clone() Utterance {
	var clone Utterance
	if err := copier.CopyWithOption(&clone, &u, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("failed to deep copy utterance, falling back to manual copy", "error", err)
		clone = u
		clone.Fragments = make([]Fragment, len(u.Fragments))
		for i, fragment := range u.Fragments {
			clone.Fragments[i] = fragment.clone()
		}
	}
	clone.OnComplete = u.OnComplete
	return clone
}
