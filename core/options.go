package feedback

import (
	"github.com/koscakluka/ema-access/core/coalescer"
	"github.com/koscakluka/ema-access/core/config"
	"github.com/koscakluka/ema-access/core/cursor"
	"github.com/koscakluka/ema-access/core/keycombo"
	"github.com/koscakluka/ema-access/core/rules"
	"github.com/koscakluka/ema-access/core/speech"
)

type PipelineOption func(*Pipeline)

// WithTree sets the UI tree the cursor navigates. Without one, navigation
// combos report a boundary.
func WithTree(tree cursor.Tree) PipelineOption {
	return func(p *Pipeline) { p.tree = tree }
}

func WithRuleProcessor(processor coalescer.RuleProcessor) PipelineOption {
	return func(p *Pipeline) { p.rules = processor }
}

// WithRuleWatcher hands a rule watcher to the pipeline. It is started by
// Start and closed by Close.
func WithRuleWatcher(watcher *rules.Watcher) PipelineOption {
	return func(p *Pipeline) { p.watcher = watcher }
}

func WithEngineBinding(binding speech.EngineBinding) PipelineOption {
	return func(p *Pipeline) { p.binding = binding }
}

// WithFeedbackPlayer sets the earcon and haptic player. A player that has a
// Close() error method is closed with the pipeline.
func WithFeedbackPlayer(player speech.FeedbackPlayer) PipelineOption {
	return func(p *Pipeline) { p.player = player }
}

// WithCombos replaces the default key combo table.
func WithCombos(combos []keycombo.Combo) PipelineOption {
	return func(p *Pipeline) { p.combos = append([]keycombo.Combo(nil), combos...) }
}

func WithSpeechOptions(opts ...speech.ControllerOption) PipelineOption {
	return func(p *Pipeline) { p.speechOpts = append(p.speechOpts, opts...) }
}

func WithCoalescerOptions(opts ...coalescer.CoalescerOption) PipelineOption {
	return func(p *Pipeline) { p.coalescerOpts = append(p.coalescerOpts, opts...) }
}

func WithCursorOptions(opts ...cursor.ControllerOption) PipelineOption {
	return func(p *Pipeline) { p.cursorOpts = append(p.cursorOpts, opts...) }
}

// WithConfig applies the speech and coalescer settings of cfg. Files named
// by cfg (rules, combos) are loaded by the caller.
func WithConfig(cfg *config.Config) PipelineOption {
	return func(p *Pipeline) {
		if cfg == nil {
			return
		}

		p.speechOpts = append(p.speechOpts,
			speech.WithEngines(cfg.Speech.Engines...),
			speech.WithVoice(cfg.Speech.Pitch, cfg.Speech.Rate),
			speech.WithIntonation(cfg.Speech.Intonation),
			speech.WithVolume(cfg.Speech.Volume),
			speech.WithFailureThreshold(cfg.Speech.FailureThreshold),
			speech.WithEngineAnnouncement(cfg.Speech.AnnounceEngine),
		)
		p.coalescerOpts = append(p.coalescerOpts,
			coalescer.WithDelay(cfg.Coalescer.Delay),
			coalescer.WithQueueBound(cfg.Coalescer.QueueBound),
			coalescer.WithCollapsibleKinds(cfg.CollapsibleKinds()...),
		)
	}
}
