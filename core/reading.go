package feedback

import (
	"github.com/koscakluka/ema-access/core/audio"
	"github.com/koscakluka/ema-access/core/cursor"
	"github.com/koscakluka/ema-access/core/utterance"
)

// labeled is implemented by nodes that can say more than their content
// description.
type labeled interface {
	Label() string
}

// ReadFromCursor starts continuous reading at the cursor. Each node is
// spoken in turn and the cursor advances once it has been spoken in full.
// Reading stops at the end of the tree, on any combo other than this one,
// and as soon as an utterance ends without being spoken.
func (p *Pipeline) ReadFromCursor() bool {
	if p == nil || p.cursor == nil || p.IsSuspended() {
		return false
	}

	node := p.cursor.Cursor()
	if node == nil {
		return false
	}

	p.mu.Lock()
	p.readingSeed++
	generation := p.readingSeed
	p.reading = generation
	p.mu.Unlock()

	logger.Debug("continuous reading started", "node", node.ID())
	if nodeText(node) == "" {
		p.advanceReading(generation)
		return p.IsReading()
	}
	p.readNode(generation, node, true)
	return true
}

// StopReading ends continuous reading. Speech already queued is left alone.
func (p *Pipeline) StopReading() {
	if p == nil {
		return
	}

	p.mu.Lock()
	running := p.reading != 0
	p.reading = 0
	p.mu.Unlock()

	if running {
		logger.Debug("continuous reading stopped")
	}
}

func (p *Pipeline) IsReading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reading != 0
}

func (p *Pipeline) isReading(generation int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reading == generation
}

// finishReading ends reading if generation still owns it.
func (p *Pipeline) finishReading(generation int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reading != generation {
		return false
	}
	p.reading = 0
	return true
}

func (p *Pipeline) readNode(generation int64, node cursor.Node, first bool) {
	fragment := utterance.Fragment{Text: nodeText(node)}
	mode := utterance.QueueModeQueue
	if first {
		fragment.AddEarcon(audio.EarconReadingStart)
		mode = utterance.QueueModeInterrupt
	}

	index := p.speech.SpeakUtterance(utterance.Utterance{
		Fragments: []utterance.Fragment{fragment},
		Mode:      mode,
		Flags:     utterance.FlagAdvanceContinuousReading,
		OnComplete: func(status utterance.Status) {
			p.onReadingCompleted(generation, status)
		},
	})
	if index < 0 {
		p.finishReading(generation)
	}
}

func (p *Pipeline) onReadingCompleted(generation int64, status utterance.Status) {
	if !p.isReading(generation) {
		return
	}
	if status != utterance.StatusSpoken {
		p.finishReading(generation)
		logger.Debug("continuous reading interrupted", "status", status.String())
		return
	}
	p.advanceReading(generation)
}

// advanceReading moves to the next node that has something to say.
func (p *Pipeline) advanceReading(generation int64) {
	for p.isReading(generation) {
		if !p.cursor.Next(false, false) {
			if p.finishReading(generation) {
				logger.Debug("continuous reading reached the end")
				p.playEarcon(audio.EarconBoundary, utterance.QueueModeQueue)
			}
			return
		}

		node := p.cursor.Cursor()
		if node == nil {
			p.finishReading(generation)
			return
		}
		if nodeText(node) != "" {
			p.readNode(generation, node, false)
			return
		}
	}
}

func nodeText(node cursor.Node) string {
	if l, ok := node.(labeled); ok {
		if label := l.Label(); label != "" {
			return label
		}
	}
	return node.ContentDescription()
}
