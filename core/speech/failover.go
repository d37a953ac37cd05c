package speech

import (
	"context"
	"fmt"
	"slices"

	"github.com/koscakluka/ema-access/core/utterance"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// engineState is owned by the worker. candidates[0] is the engine in use or
// being initialized.
type engineState struct {
	candidates []string
	failures   int

	// generation changes whenever engine callbacks in flight must be
	// ignored.
	generation   uint64
	initializing bool
	switching    bool
	halted       bool
}

func (s *engineState) currentName() string {
	if len(s.candidates) == 0 {
		return ""
	}
	return s.candidates[0]
}

// engineListener tags engine callbacks with the generation they were
// created for and marshals them onto the worker.
type engineListener struct {
	controller *Controller
	generation uint64
}

func (l *engineListener) OnInitialized(name string, engine Engine, err error) {
	msg := initializedMessage{generation: l.generation, name: name, engine: engine, err: err}
	if !l.controller.mailbox.post(msg) {
		l.controller.discard(msg)
	}
}

func (l *engineListener) OnUtteranceCompleted(utteranceID string, ok bool) {
	l.controller.mailbox.post(completedMessage{generation: l.generation, utteranceID: utteranceID, ok: ok})
}

func (l *engineListener) OnEngineCrashed(name string, err error) {
	l.controller.mailbox.post(crashedMessage{generation: l.generation, name: name, err: err})
}

func (c *Controller) startEngines() {
	if len(c.engines.candidates) == 0 {
		c.halt(ErrNoEngineAvailable)
		return
	}
	c.initialize(c.engines.currentName())
}

// initialize starts an asynchronous initialization of the named engine.
// Only one may be in flight at a time.
func (c *Controller) initialize(name string) {
	if c.engines.initializing {
		logger.Warn("speech engine is still initializing, ignoring request", "engine", name)
		return
	}
	if c.binding == nil {
		c.halt(fmt.Errorf("failed to initialize engine %s: no engine binding", name))
		return
	}

	c.engines.initializing = true
	c.engines.generation++
	listener := &engineListener{controller: c, generation: c.engines.generation}

	binding := c.binding
	run := panicSafeNamedWorker("engine initialization", func(ctx context.Context) error {
		return binding.Initialize(ctx, name, listener)
	})

	ctx := c.baseContext
	go func() {
		if err := run(ctx); err != nil {
			listener.OnInitialized(name, nil, fmt.Errorf("failed to initialize engine %s: %w", name, err))
		}
	}()
}

func (c *Controller) handleInitialized(msg initializedMessage) {
	if msg.generation != c.engines.generation {
		c.discard(msg)
		return
	}
	c.engines.initializing = false

	if msg.err != nil || isNilEngine(msg.engine) {
		err := msg.err
		if err == nil {
			err = fmt.Errorf("engine %s initialized without an engine", msg.name)
		}
		c.engineFailed(err)
		return
	}

	c.engine = newEngineClient(msg.name, msg.engine)
	c.voice = voiceCache{}
	c.setActiveEngine(msg.name)
	logger.Info("speech engine ready", "engine", msg.name)

	// Whatever the previous engine was saying is lost.
	if c.current != nil {
		c.completeCurrent(utterance.StatusError)
	}

	if c.engines.switching {
		c.engines.switching = false
		if c.announceEngine {
			announcement := utterance.New("Using "+msg.name, utterance.QueueModeQueue)
			announcement.Flags = utterance.FlagNoHistory
			c.SpeakUtterance(announcement)
		}
	}

	c.speakNext()
}

func (c *Controller) handleCrashed(msg crashedMessage) {
	if msg.generation != c.engines.generation {
		return
	}
	c.engineFailed(fmt.Errorf("engine %s crashed: %w", msg.name, msg.err))
}

func (c *Controller) handleSetEngine(name string) {
	if c.engines.initializing {
		logger.Warn("speech engine is still initializing, ignoring switch", "engine", name)
		return
	}

	c.engines.candidates = slices.DeleteFunc(c.engines.candidates, func(candidate string) bool {
		return candidate == name
	})
	c.engines.candidates = append([]string{name}, c.engines.candidates...)
	c.engines.failures = 0
	c.engines.halted = false
	c.setErr(nil)

	c.shutdownEngine()
	c.engines.switching = true
	c.initialize(name)
}

// engineFailed counts a failure against the current engine. Below the
// threshold the same engine is reinitialized; at it the engine is dropped
// for good and the next candidate starts with a clean count.
func (c *Controller) engineFailed(cause error) {
	if c.engines.halted {
		return
	}

	name := c.engines.currentName()
	_, span := tracer.Start(c.baseContext, "engine failover",
		trace.WithAttributes(attribute.String("engine.name", name)))
	defer span.End()
	span.RecordError(cause)

	if c.engineFailures != nil {
		c.engineFailures.Add(c.baseContext, 1, metric.WithAttributes(attribute.String("engine", name)))
	}

	// Anything the failed engine still reports is stale from here on.
	c.engines.generation++
	c.engines.initializing = false
	c.shutdownEngine()

	c.engines.failures++
	span.SetAttributes(attribute.Int("engine.failures", c.engines.failures))
	if c.engines.failures < c.failureThreshold {
		logger.Warn("speech engine failed, reinitializing", "engine", name, "failures", c.engines.failures, "error", cause)
		span.SetAttributes(attribute.String("failover.action", "reinitialize"))
		c.initialize(name)
		return
	}

	c.engines.candidates = c.engines.candidates[1:]
	c.engines.failures = 0
	if len(c.engines.candidates) == 0 {
		span.SetStatus(codes.Error, "no engine available")
		c.halt(cause)
		return
	}

	next := c.engines.currentName()
	logger.Warn("speech engine dropped, failing over", "engine", name, "next", next, "error", cause)
	span.SetAttributes(
		attribute.String("failover.action", "switch"),
		attribute.String("failover.next", next),
	)
	c.initialize(next)
}

func (c *Controller) shutdownEngine() {
	if c.engine == nil {
		return
	}
	if err := c.engine.Shutdown(); err != nil {
		logger.Warn("failed to shut down speech engine", "engine", c.engine.name, "error", err)
	}
	c.engine = nil
	c.voice = voiceCache{}
	c.setActiveEngine("")
}

// halt gives up on speech. Everything pending completes with an error and
// later utterances do too, without reaching an engine.
func (c *Controller) halt(cause error) {
	c.engines.halted = true
	c.engines.initializing = false
	c.setErr(ErrNoEngineAvailable)
	logger.Error("no speech engine available, speech halted", "error", cause)

	dropped := c.takePending()
	c.latchIndex = 0

	highest := int64(0)
	for _, it := range dropped {
		highest = max(highest, it.index())
	}
	runCompletionActions(c.actions.takeUpTo(highest), utterance.StatusError)
	for _, it := range dropped {
		c.finishItem(it, utterance.StatusError)
	}
	c.setState(StateIdle)
}
