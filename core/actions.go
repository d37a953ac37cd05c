package feedback

import (
	"github.com/koscakluka/ema-access/core/audio"
	"github.com/koscakluka/ema-access/core/cursor"
	"github.com/koscakluka/ema-access/core/keycombo"
	"github.com/koscakluka/ema-access/core/utterance"
	"go.opentelemetry.io/otel/attribute"
)

const (
	suspendedText = "Suspended"
	resumedText   = "Resumed"
)

// onCombo maps a performed chord to its action. It runs on the goroutine
// that called HandleKey.
func (p *Pipeline) onCombo(id string) bool {
	if p.IsSuspended() && id != keycombo.ComboSuspendResume {
		return false
	}
	if id != keycombo.ComboReadFromCursor {
		p.StopReading()
	}

	switch id {
	case keycombo.ComboSuspendResume:
		if p.IsSuspended() {
			p.SetSuspended(false)
			p.announce(resumedText, "")
		} else {
			p.SetSuspended(true)
			p.announce(suspendedText, "")
		}

	case keycombo.ComboNext:
		p.navigate(id, func(c *cursor.Controller) bool { return c.Next(true, true) })
	case keycombo.ComboPrevious:
		p.navigate(id, func(c *cursor.Controller) bool { return c.Previous(true, true) })
	case keycombo.ComboNextGranularity:
		p.navigate(id, (*cursor.Controller).NextGranularity)
	case keycombo.ComboPreviousGranularity:
		p.navigate(id, (*cursor.Controller).PreviousGranularity)
	case keycombo.ComboScrollForward:
		p.navigate(id, (*cursor.Controller).More)
	case keycombo.ComboScrollBackward:
		p.navigate(id, (*cursor.Controller).Less)
	case keycombo.ComboJumpToTop:
		p.navigate(id, (*cursor.Controller).JumpToTop)
	case keycombo.ComboJumpToBottom:
		p.navigate(id, (*cursor.Controller).JumpToBottom)
	case keycombo.ComboClick:
		p.navigate(id, (*cursor.Controller).ClickCurrent)
	case keycombo.ComboLongClick:
		p.navigate(id, (*cursor.Controller).LongClickCurrent)

	case keycombo.ComboRepeatLast:
		if !p.speech.RepeatLast() {
			p.playBoundary()
		}
	case keycombo.ComboSpellLast:
		if !p.speech.SpellLast() {
			p.playBoundary()
		}
	case keycombo.ComboStopSpeech:
		p.speech.Interrupt()
	case keycombo.ComboReadFromCursor:
		if !p.ReadFromCursor() {
			p.playBoundary()
		}

	default:
		logger.Debug("ignoring unknown combo", "combo", id)
		return false
	}
	return true
}

// navigate runs one cursor movement and plays the boundary earcon when it
// goes nowhere.
func (p *Pipeline) navigate(name string, move func(*cursor.Controller) bool) bool {
	_, span := tracer.Start(p.baseContext, "navigate")
	defer span.End()
	span.SetAttributes(attribute.String("navigate.action", name))

	moved := p.cursor != nil && move(p.cursor)
	span.SetAttributes(attribute.Bool("navigate.moved", moved))
	if !moved {
		p.playBoundary()
	}
	return moved
}

func (p *Pipeline) playBoundary() {
	p.playEarcon(audio.EarconBoundary, utterance.QueueModeInterrupt)
}

func (p *Pipeline) playEarcon(earcon string, mode utterance.QueueMode) {
	p.speech.SpeakUtterance(utterance.Utterance{
		Fragments: []utterance.Fragment{{Earcons: []string{earcon}}},
		Mode:      mode,
		Flags:     utterance.FlagNoSpeech | utterance.FlagNoHistory,
	})
}

// announce speaks pipeline status text, optionally with an earcon. It is
// kept out of the repeat history.
func (p *Pipeline) announce(text, earcon string) {
	fragment := utterance.Fragment{Text: text}
	fragment.AddEarcon(earcon)
	p.speech.SpeakUtterance(utterance.Utterance{
		Fragments: []utterance.Fragment{fragment},
		Mode:      utterance.QueueModeInterrupt,
		Flags:     utterance.FlagNoHistory,
	})
}
