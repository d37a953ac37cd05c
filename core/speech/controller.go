// Package speech turns utterances into ordered, interruptible engine calls.
//
// A [Controller] owns a single worker goroutine. Every state change, whether
// it comes from a caller or from the engine, is posted to the worker's
// mailbox and applied there in arrival order, which is what keeps utterance
// ordering deterministic.
package speech

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-access/core/utterance"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const defaultFailureThreshold = 2

// State is the controller's speaking state.
type State int32

const (
	StateIdle State = iota
	StateSpeakingInterruptible
	StateSpeakingUninterruptible
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeakingInterruptible:
		return "speaking"
	case StateSpeakingUninterruptible:
		return "speaking_uninterruptible"
	default:
		return "unknown"
	}
}

// item is an accepted utterance waiting for, or holding, the engine.
type item struct {
	utterance utterance.Utterance
	id        string
	epoch     uint64

	// next is the fragment to send once the previous one completes.
	next int
	// flush marks an item that preempted everything before it.
	flush   bool
	started bool
	span    trace.Span
}

func (it *item) index() int64 { return it.utterance.Index }

type voiceCache struct {
	pitch float64
	rate  float64
	valid bool
}

type Controller struct {
	binding  EngineBinding
	player   FeedbackPlayer
	ringer   Ringer
	listener UtteranceListener

	onSpeaking func()
	onIdle     func()

	pitch            float64
	rate             float64
	volume           float64
	intonation       bool
	failureThreshold int
	announceEngine   bool

	baseContext context.Context

	mailbox *mailbox
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	// indexMu keeps index allocation, epoch changes and mailbox order in
	// step with each other.
	indexMu   sync.Mutex
	nextIndex int64
	epoch     atomic.Uint64

	actions completionActions
	state   atomic.Int32

	statusMu     sync.RWMutex
	err          error
	activeEngine string

	historyMu sync.Mutex
	last      *utterance.Utterance

	// Everything below is owned by the worker.
	engines    engineState
	engine     *engineClient
	queue      []*item
	current    *item
	latchIndex int64
	voice      voiceCache

	utterances     metric.Int64Counter
	engineFailures metric.Int64Counter
}

// NewController creates a controller speaking through engines created by
// binding. Nothing is initialized until [Controller.Start].
func NewController(binding EngineBinding, opts ...ControllerOption) *Controller {
	c := &Controller{
		binding:          binding,
		pitch:            1,
		rate:             1,
		volume:           1,
		intonation:       true,
		failureThreshold: defaultFailureThreshold,
		baseContext:      context.Background(),
		mailbox:          newMailbox(),
		closeCh:          make(chan struct{}),
		done:             make(chan struct{}),
		nextIndex:        1,
	}

	for _, opt := range opts {
		opt(c)
	}

	utterances, err := meter.Int64Counter("speech.utterances",
		metric.WithDescription("Number of utterances that left the speech controller"))
	if err != nil {
		logger.Warn("failed to create utterance counter", "error", err)
	}
	c.utterances = utterances

	failures, err := meter.Int64Counter("speech.engine_failures",
		metric.WithDescription("Number of speech engine failures"))
	if err != nil {
		logger.Warn("failed to create engine failure counter", "error", err)
	}
	c.engineFailures = failures

	return c
}

// Start launches the worker and initializes the first engine candidate.
// Utterances submitted before Start wait in the mailbox.
func (c *Controller) Start(ctx context.Context) (started bool) {
	if c == nil || c.isClosed() {
		return false
	}

	c.startOnce.Do(func() {
		if c.isClosed() {
			return
		}
		if ctx != nil {
			c.baseContext = ctx
		}

		started = true
		c.started.Store(true)
		go c.run()
		c.mailbox.post(startMessage{})
	})
	return started
}

// Close stops the worker, completes everything still pending as interrupted
// and shuts the engine down. It is safe to call more than once.
func (c *Controller) Close() error {
	if c == nil {
		return nil
	}

	var err error
	c.closeOnce.Do(func() {
		// Wait out a concurrent Start and keep later ones from running.
		c.startOnce.Do(func() {})
		close(c.closeCh)
		if c.started.Load() {
			<-c.done
		}

		for _, msg := range c.mailbox.close() {
			c.discard(msg)
		}

		dropped := c.takePending()
		runCompletionActions(c.actions.takeUpTo(allUtterances), utterance.StatusInterrupted)
		for _, it := range dropped {
			c.finishItem(it, utterance.StatusInterrupted)
		}

		if c.engine != nil {
			err = c.engine.Shutdown()
			c.engine = nil
		}
		c.setActiveEngine("")
		c.setState(StateIdle)
	})
	return err
}

func (c *Controller) isClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Speak submits a single fragment utterance and returns its index, or -1
// when the text is empty or the controller is closed.
func (c *Controller) Speak(text string, mode utterance.QueueMode, flags utterance.Flag, params utterance.Params, onComplete utterance.CompletionFunc) int64 {
	u := utterance.New(text, mode)
	u.Flags = flags
	u.Fragments[0].Params = params
	u.OnComplete = onComplete
	return c.SpeakUtterance(u)
}

// SpeakUtterance submits u and returns the index assigned to it. Indices
// strictly increase for the lifetime of the controller. Utterances with no
// text, earcons or haptics are ignored and get -1, and their OnComplete runs
// with StatusError before SpeakUtterance returns.
func (c *Controller) SpeakUtterance(u utterance.Utterance) int64 {
	if c == nil {
		return -1
	}

	u = prepareUtterance(u)
	if len(u.Fragments) == 0 {
		logger.Debug("ignoring empty utterance")
		runCompletion(u.OnComplete, utterance.StatusError)
		return -1
	}

	c.indexMu.Lock()
	u.Index = c.nextIndex
	if !c.mailbox.post(speakMessage{utterance: u, epoch: c.epoch.Load()}) {
		c.indexMu.Unlock()
		runCompletion(u.OnComplete, utterance.StatusInterrupted)
		return -1
	}
	c.nextIndex++
	c.indexMu.Unlock()

	return u.Index
}

// PeekNextIndex returns the index the next accepted utterance will get.
func (c *Controller) PeekNextIndex() int64 {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	return c.nextIndex
}

// AddCompletionAction runs action once every utterance up to and including
// index has completed.
func (c *Controller) AddCompletionAction(index int64, action utterance.CompletionFunc) ActionID {
	if action == nil {
		return ""
	}
	return c.actions.add(index, action)
}

func (c *Controller) RemoveCompletionAction(id ActionID) bool {
	return c.actions.remove(id)
}

// Interrupt stops speech now. Pending completion actions fire as
// interrupted, and utterances submitted before the call are never spoken.
//
// The pending actions run on the caller's goroutine before Interrupt
// returns. The worker may be running other completions at the same time,
// so an action must not assume it is serialized with them. Actions may call
// back into the controller, Interrupt included.
func (c *Controller) Interrupt() {
	c.interrupt(false)
}

// StopAll is Interrupt that also silences other producers sharing the
// engine's output.
func (c *Controller) StopAll() {
	c.interrupt(true)
}

func (c *Controller) interrupt(global bool) {
	if c == nil {
		return
	}

	runCompletionActions(c.actions.takeUpTo(allUtterances), utterance.StatusInterrupted)

	c.indexMu.Lock()
	c.epoch.Add(1)
	c.mailbox.post(interruptMessage{boundary: c.nextIndex, global: global})
	c.indexMu.Unlock()
}

// RepeatLast speaks the most recent utterance that was not excluded from
// history again.
func (c *Controller) RepeatLast() bool {
	last := c.lastUtterance()
	if last == nil {
		return false
	}

	repeat := last.Clone()
	repeat.Mode = utterance.QueueModeInterrupt
	repeat.Flags |= utterance.FlagNoHistory
	repeat.OnComplete = nil
	return c.SpeakUtterance(repeat) >= 0
}

// SpellLast spells the most recent history utterance character by
// character.
func (c *Controller) SpellLast() bool {
	last := c.lastUtterance()
	if last == nil {
		return false
	}

	text := last.Text()
	if text == "" {
		return false
	}
	return c.Speak(spellOut(text), utterance.QueueModeInterrupt, utterance.FlagNoHistory, nil, nil) >= 0
}

// SetEngine switches to the named engine. The request is ignored with a
// warning while another engine is still initializing.
func (c *Controller) SetEngine(name string) {
	if c == nil || name == "" {
		return
	}
	c.mailbox.post(setEngineMessage{name: name})
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) IsSpeaking() bool {
	return c.State() != StateIdle
}

// Err reports why the controller stopped speaking, if it did.
func (c *Controller) Err() error {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.err
}

// Engine returns the name of the ready engine, or "" while none is.
func (c *Controller) Engine() string {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.activeEngine
}

func (c *Controller) setErr(err error) {
	c.statusMu.Lock()
	c.err = err
	c.statusMu.Unlock()
}

func (c *Controller) setActiveEngine(name string) {
	c.statusMu.Lock()
	c.activeEngine = name
	c.statusMu.Unlock()
}

func (c *Controller) lastUtterance() *utterance.Utterance {
	c.historyMu.Lock()
	defer c.historyMu.Unlock()
	return c.last
}

func (c *Controller) remember(u utterance.Utterance) {
	clone := u.Clone()
	clone.OnComplete = nil

	c.historyMu.Lock()
	c.last = &clone
	c.historyMu.Unlock()
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case <-c.closeCh:
			return
		case <-c.mailbox.updateSignal:
		}

		for _, msg := range c.mailbox.drain() {
			if c.isClosed() {
				c.discard(msg)
				continue
			}

			handle := panicSafeNamedWorker("speech", func(context.Context) error {
				c.handle(msg)
				return nil
			})
			if err := handle(c.baseContext); err != nil {
				logger.Error("failed to handle speech message", "error", err)
			}
		}
	}
}

func (c *Controller) handle(msg message) {
	switch msg := msg.(type) {
	case speakMessage:
		c.handleSpeak(msg)
	case interruptMessage:
		c.handleInterrupt(msg)
	case startMessage:
		c.startEngines()
	case setEngineMessage:
		c.handleSetEngine(msg.name)
	case initializedMessage:
		c.handleInitialized(msg)
	case completedMessage:
		c.handleCompleted(msg)
	case crashedMessage:
		c.handleCrashed(msg)
	}
}

// discard settles a message that will never be handled.
func (c *Controller) discard(msg message) {
	switch msg := msg.(type) {
	case speakMessage:
		runCompletion(msg.utterance.OnComplete, utterance.StatusInterrupted)
	case initializedMessage:
		if engine := newEngineClient(msg.name, msg.engine); engine != nil {
			if err := engine.Shutdown(); err != nil {
				logger.Warn("failed to shut down late engine", "engine", msg.name, "error", err)
			}
		}
	}
}

func (c *Controller) handleSpeak(msg speakMessage) {
	u := msg.utterance
	if msg.epoch != c.epoch.Load() {
		runCompletion(u.OnComplete, utterance.StatusInterrupted)
		return
	}
	if c.engines.halted {
		runCompletion(u.OnComplete, utterance.StatusError)
		return
	}

	// Side effects only, without touching the queue.
	if u.Flags.Has(utterance.FlagNoSpeech) {
		for _, fragment := range u.Fragments {
			c.playFeedback(fragment)
		}
		runCompletion(u.OnComplete, utterance.StatusSpoken)
		return
	}

	c.lowerRinger(u.Index)
	if u.OnComplete != nil {
		c.actions.add(u.Index, u.OnComplete)
	}

	it := &item{utterance: u, id: utteranceID(u.Index), epoch: msg.epoch}
	switch {
	case u.Mode == utterance.QueueModeUninterruptible:
		c.flush(u.Index)
		it.flush = true
		c.latchIndex = u.Index
	case u.Mode == utterance.QueueModeInterrupt && c.latchIndex == 0:
		c.flush(u.Index)
		it.flush = true
	default:
		// Queue, or Interrupt while an uninterruptible utterance holds the
		// floor. Neither touches the latch.
	}

	c.queue = append(c.queue, it)
	c.speakNext()
}

// flush drops everything that would have been spoken before index.
func (c *Controller) flush(index int64) {
	dropped := c.takePending()
	c.latchIndex = 0

	runCompletionActions(c.actions.takeUpTo(index-1), utterance.StatusInterrupted)
	for _, it := range dropped {
		c.finishItem(it, utterance.StatusInterrupted)
	}
}

func (c *Controller) takePending() []*item {
	dropped := c.queue
	if c.current != nil {
		dropped = append([]*item{c.current}, dropped...)
	}
	c.current = nil
	c.queue = nil
	return dropped
}

func (c *Controller) handleInterrupt(msg interruptMessage) {
	dropped := c.takePending()
	c.latchIndex = 0

	runCompletionActions(c.actions.takeUpTo(msg.boundary-1), utterance.StatusInterrupted)
	for _, it := range dropped {
		c.finishItem(it, utterance.StatusInterrupted)
	}

	if c.engine != nil {
		stop := c.engine.Stop
		if msg.global {
			stop = c.engine.StopAll
		}
		if err := stop(); err != nil {
			logger.Warn("failed to stop speech engine", "global", msg.global, "error", err)
		}
	}
	c.setState(StateIdle)
}

func (c *Controller) speakNext() {
	if c.current != nil || c.engine == nil {
		return
	}

	epoch := c.epoch.Load()
	for len(c.queue) > 0 && c.current == nil {
		it := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		if it.epoch != epoch {
			c.finishItem(it, utterance.StatusInterrupted)
			continue
		}
		c.current = it
	}

	if c.current == nil {
		c.setState(StateIdle)
		return
	}
	c.startItem(c.current)
}

func (c *Controller) startItem(it *item) {
	u := it.utterance
	if u.Mode == utterance.QueueModeUninterruptible {
		c.setState(StateSpeakingUninterruptible)
	} else {
		c.setState(StateSpeakingInterruptible)
	}

	if !u.Flags.Has(utterance.FlagNoHistory) {
		c.remember(u)
	}

	it.started = true
	_, it.span = tracer.Start(c.baseContext, "speak utterance",
		trace.WithAttributes(
			attribute.Int64("utterance.index", u.Index),
			attribute.String("utterance.mode", u.Mode.String()),
			attribute.Int("utterance.fragments", len(u.Fragments)),
		))

	if c.listener != nil {
		notify("utterance started", func() { c.listener.OnUtteranceStarted(u.Index) })
	}

	c.speakFragment(it)
}

func (c *Controller) speakFragment(it *item) {
	fragment := it.utterance.Fragments[it.next]
	directive := DirectiveAppend
	if it.next == 0 && it.flush {
		directive = DirectiveFlush
	}
	it.next++

	c.playFeedback(fragment)

	if err := c.applyVoice(fragment); err != nil {
		it.span.RecordError(err)
		c.engineFailed(err)
		return
	}

	if fragment.Text == "" {
		if directive == DirectiveFlush {
			if err := c.engine.Stop(); err != nil {
				logger.Warn("failed to stop speech engine", "error", err)
			}
		}
		// Nothing to say; complete through the mailbox like an engine would.
		c.mailbox.post(completedMessage{generation: c.engines.generation, utteranceID: it.id, ok: true})
		return
	}

	params := make(utterance.Params, len(fragment.Params)+1)
	for param, value := range fragment.Params {
		params[param] = value
	}
	params[utterance.ParamVolume] = c.volume * fragment.Params.Get(utterance.ParamVolume, 1)

	it.span.AddEvent("speak fragment", trace.WithAttributes(
		attribute.Int("fragment.index", it.next-1),
		attribute.String("fragment.directive", directive.String()),
	))

	err := c.engine.Speak(Request{
		UtteranceID: it.id,
		Text:        fragment.Text,
		Directive:   directive,
		Params:      params,
	})
	if err != nil {
		it.span.RecordError(err)
		c.engineFailed(err)
	}
}

// applyVoice reconfigures the engine only when the effective pitch or rate
// changes.
func (c *Controller) applyVoice(fragment utterance.Fragment) error {
	pitch, rate := c.pitch, c.rate
	if c.intonation {
		pitch *= fragment.Params.Get(utterance.ParamPitch, 1)
		rate *= fragment.Params.Get(utterance.ParamRate, 1)
	}

	if c.voice.valid && c.voice.pitch == pitch && c.voice.rate == rate {
		return nil
	}

	if c.voice.valid {
		if err := c.engine.Stop(); err != nil {
			return err
		}
	}
	if err := c.engine.SetVoice(pitch, rate); err != nil {
		return err
	}

	c.voice = voiceCache{pitch: pitch, rate: rate, valid: true}
	return nil
}

func (c *Controller) handleCompleted(msg completedMessage) {
	if msg.generation != c.engines.generation {
		return
	}

	index, valid := parseUtteranceID(msg.utteranceID)
	if c.current == nil || c.current.id != msg.utteranceID {
		// A completion for something already flushed.
		if valid {
			runCompletionActions(c.actions.takeUpTo(index), utterance.StatusInterrupted)
		}
		return
	}

	if !msg.ok {
		c.completeCurrent(utterance.StatusError)
		return
	}

	c.engines.failures = 0
	if c.current.next < len(c.current.utterance.Fragments) {
		c.speakFragment(c.current)
		return
	}
	c.completeCurrent(utterance.StatusSpoken)
}

func (c *Controller) completeCurrent(status utterance.Status) {
	it := c.current
	c.current = nil

	if c.latchIndex != 0 && it.index() >= c.latchIndex {
		c.latchIndex = 0
	}

	runCompletionActions(c.actions.takeUpTo(it.index()), status)
	c.finishItem(it, status)
	c.speakNext()
}

func (c *Controller) finishItem(it *item, status utterance.Status) {
	if !it.started {
		return
	}

	if c.listener != nil {
		notify("utterance completed", func() { c.listener.OnUtteranceCompleted(it.index(), status) })
	}

	if c.utterances != nil {
		c.utterances.Add(c.baseContext, 1, metric.WithAttributes(attribute.String("status", status.String())))
	}

	if it.span != nil {
		it.span.SetAttributes(attribute.String("utterance.status", status.String()))
		it.span.End()
	}
}

func (c *Controller) setState(next State) {
	previous := State(c.state.Swap(int32(next)))
	switch {
	case previous == StateIdle && next != StateIdle:
		notify("speaking hook", c.onSpeaking)
	case previous != StateIdle && next == StateIdle:
		notify("idle hook", c.onIdle)
	}
}

func (c *Controller) playFeedback(fragment utterance.Fragment) {
	if c.player == nil {
		return
	}

	rate := fragment.Params.Get(utterance.ParamRate, 1)
	volume := fragment.Params.Get(utterance.ParamVolume, 1)
	for _, earcon := range fragment.Earcons {
		notify("earcon", func() { c.player.PlayEarcon(earcon, rate, volume) })
	}
	for _, haptic := range fragment.Haptics {
		notify("haptic", func() { c.player.PlayHaptic(haptic) })
	}
}

// lowerRinger turns a ringing device down so speech is audible and restores
// it once the utterance at index completes.
func (c *Controller) lowerRinger(index int64) {
	if c.ringer == nil || !c.ringer.IsRinging() {
		return
	}

	current, maxVolume := c.ringer.Volume()
	lowered := max(maxVolume/3, current/2)
	if lowered >= current {
		return
	}

	c.ringer.SetVolume(lowered)
	ringer := c.ringer
	c.actions.add(index, func(utterance.Status) { ringer.SetVolume(current) })
}

// prepareUtterance trims fragment text, names lone symbols, splits text the
// engine cannot take in one request and drops fragments with nothing in
// them.
func prepareUtterance(u utterance.Utterance) utterance.Utterance {
	fragments := make([]utterance.Fragment, 0, len(u.Fragments))
	for _, fragment := range u.Fragments {
		fragment.Text = cleanUpSymbol(strings.TrimSpace(fragment.Text))
		if fragment.Text == "" && len(fragment.Earcons) == 0 && len(fragment.Haptics) == 0 {
			continue
		}

		for i, piece := range splitLongText(fragment.Text) {
			part := fragment
			part.Text = piece
			if i > 0 {
				part.Earcons = nil
				part.Haptics = nil
			}
			fragments = append(fragments, part)
		}
	}
	u.Fragments = fragments
	return u
}
