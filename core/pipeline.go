// Package feedback assembles the spoken-feedback pipeline: UI events flow
// through the coalescer and rules into the speech controller, and key chords
// drive the cursor and speech.
//
// A Pipeline owns every component it creates. Nothing is shared through
// package state, so several pipelines can run side by side.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/koscakluka/ema-access/core/audio"
	"github.com/koscakluka/ema-access/core/coalescer"
	"github.com/koscakluka/ema-access/core/cursor"
	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/keycombo"
	"github.com/koscakluka/ema-access/core/rules"
	"github.com/koscakluka/ema-access/core/speech"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Pipeline struct {
	tree    cursor.Tree
	rules   coalescer.RuleProcessor
	watcher *rules.Watcher
	binding speech.EngineBinding
	player  speech.FeedbackPlayer
	combos  []keycombo.Combo

	speechOpts    []speech.ControllerOption
	coalescerOpts []coalescer.CoalescerOption
	cursorOpts    []cursor.ControllerOption

	speech    *speech.Controller
	coalescer *coalescer.Coalescer
	cursor    *cursor.Controller
	detector  *keycombo.Detector

	mu        sync.Mutex
	suspended bool
	// reading is the generation of the running continuous reading, zero
	// when none runs.
	reading     int64
	readingSeed int64

	startOnce   sync.Once
	closeOnce   sync.Once
	baseContext context.Context
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{baseContext: context.Background()}
	for _, opt := range opts {
		opt(p)
	}

	speechOpts := []speech.ControllerOption{}
	if p.player != nil {
		speechOpts = append(speechOpts, speech.WithFeedbackPlayer(p.player))
	}
	p.speech = speech.NewController(p.binding, append(speechOpts, p.speechOpts...)...)

	p.coalescer = coalescer.New(p.rules, p.speech, p.coalescerOpts...)

	if p.tree != nil {
		cursorOpts := append([]cursor.ControllerOption{cursor.WithListener(cursorListener{p})}, p.cursorOpts...)
		p.cursor = cursor.NewController(p.tree, cursorOpts...)
	}

	detectorOpts := []keycombo.DetectorOption{keycombo.WithListener(p.onCombo)}
	if p.combos != nil {
		detectorOpts = append(detectorOpts, keycombo.WithCombos(p.combos))
	}
	p.detector = keycombo.NewDetector(detectorOpts...)

	return p
}

// Start begins speaking, draining events and watching rule files. Rule files
// that fail to load are returned as an error but do not stop the pipeline.
func (p *Pipeline) Start(ctx context.Context) error {
	var err error
	p.startOnce.Do(func() {
		if ctx != nil {
			p.baseContext = ctx
		}

		p.speech.Start(p.baseContext)
		p.coalescer.Start(p.baseContext)

		if p.watcher != nil {
			if watchErr := p.watcher.Start(p.baseContext); watchErr != nil {
				err = fmt.Errorf("failed to load rule files: %w", watchErr)
				span := trace.SpanFromContext(p.baseContext)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Warn("starting with incomplete rules", "error", watchErr)
			}
		}
	})
	return err
}

// Close stops every component. Pending events are dropped and pending
// utterances complete as interrupted.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.StopReading()
		p.startOnce.Do(func() {})

		var errs []error
		p.coalescer.Close()
		if p.watcher != nil {
			if closeErr := p.watcher.Close(); closeErr != nil {
				errs = append(errs, fmt.Errorf("failed to close rule watcher: %w", closeErr))
			}
		}
		if closeErr := p.speech.Close(); closeErr != nil {
			errs = append(errs, fmt.Errorf("failed to close speech controller: %w", closeErr))
		}
		if closer, ok := p.player.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				errs = append(errs, fmt.Errorf("failed to close feedback player: %w", closeErr))
			}
		}
		err = errors.Join(errs...)
	})
	return err
}

// HandleEvent feeds one UI event into the pipeline. Focus events move the
// cursor's granularity state, so HandleEvent must not be called from inside
// a Tree or Node method.
func (p *Pipeline) HandleEvent(e events.Event) {
	if p == nil || e == nil {
		return
	}
	if p.IsSuspended() {
		return
	}

	switch e.Kind() {
	case events.KindViewAccessibilityFocused, events.KindViewFocused:
		p.focusFromEvent(events.Snap(e).Source)
		// The reader announces the nodes it moves to itself.
		if e.Kind() == events.KindViewAccessibilityFocused && p.IsReading() {
			return
		}
	case events.KindWindowStateChanged:
		p.StopReading()
		p.cursor.Clear()
	}

	p.coalescer.Enqueue(e)
}

func (p *Pipeline) focusFromEvent(source string) {
	if p.tree == nil || source == "" {
		return
	}
	if node := p.tree.Focused(); node != nil && node.ID() == source {
		p.cursor.OnNodeFocused(node)
	}
}

// HandleKey feeds one key transition to the combo detector and reports
// whether it was consumed.
func (p *Pipeline) HandleKey(e keycombo.Event) bool {
	if p == nil {
		return false
	}
	return p.detector.OnKeyEvent(e)
}

func (p *Pipeline) Speech() *speech.Controller {
	return p.speech
}

// Cursor returns the navigation controller, or nil when the pipeline has no
// tree.
func (p *Pipeline) Cursor() *cursor.Controller {
	return p.cursor
}

func (p *Pipeline) IsSuspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// SetSuspended mutes the pipeline. While suspended, events are dropped and
// only the suspend combo is honored.
func (p *Pipeline) SetSuspended(suspended bool) {
	p.mu.Lock()
	changed := p.suspended != suspended
	p.suspended = suspended
	p.mu.Unlock()
	if !changed {
		return
	}

	if suspended {
		p.StopReading()
		p.speech.Interrupt()
	}
	logger.Info("feedback suspension changed", "suspended", suspended)
}

type cursorListener struct {
	p *Pipeline
}

func (l cursorListener) OnGranularityChanged(granularity cursor.Granularity, fromUser bool) {
	if fromUser {
		l.p.announce(granularity.String(), audio.EarconGranularity)
	}
}

func (l cursorListener) OnActionPerformed(action cursor.Action) {
	logger.Debug("cursor action performed", "action", action.String())
}
