// Package coalescer turns a noisy stream of UI events into utterances.
//
// Events may arrive from any goroutine. They are appended to a single
// queue and drained by one worker, so utterances reach the feedback sink in
// arrival order.
package coalescer

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/koscakluka/ema-access/core/events"
	"github.com/koscakluka/ema-access/core/utterance"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// RuleProcessor maps an event to the utterance describing it.
type RuleProcessor interface {
	Match(e events.Event) (utterance.Utterance, bool)
}

// FeedbackSink accepts utterances and guarantees each one eventually
// completes.
type FeedbackSink interface {
	SpeakUtterance(u utterance.Utterance) int64
}

type Coalescer struct {
	rules RuleProcessor
	sink  FeedbackSink

	delay       time.Duration
	bound       int
	collapsible map[events.Kind]bool

	mu     sync.Mutex
	queue  []events.Event
	timer  *time.Timer
	closed bool

	drainSignal chan struct{}
	closeCh     chan struct{}
	done        chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
	started   bool

	baseContext context.Context

	// lastKind is the kind of the last event dispatched with text. Owned
	// by the worker.
	lastKind events.Kind

	dropped metric.Int64Counter
}

func New(rules RuleProcessor, sink FeedbackSink, opts ...CoalescerOption) *Coalescer {
	c := &Coalescer{
		rules:       rules,
		sink:        sink,
		bound:       defaultQueueBound,
		drainSignal: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		baseContext: context.Background(),
	}
	WithCollapsibleKinds(DefaultCollapsibleKinds...)(c)

	for _, opt := range opts {
		opt(c)
	}

	dropped, err := meter.Int64Counter("coalescer.dropped_events",
		metric.WithDescription("Number of events dropped without feedback"))
	if err != nil {
		logger.Warn("failed to create dropped event counter", "error", err)
	}
	c.dropped = dropped

	return c
}

// Start launches the drain worker. Events enqueued earlier are drained
// right away.
func (c *Coalescer) Start(ctx context.Context) (started bool) {
	if c == nil {
		return false
	}

	c.startOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return
		}
		if ctx != nil {
			c.baseContext = ctx
		}

		started = true
		c.started = true
		go c.run()
		if len(c.queue) > 0 {
			c.armLocked()
		}
	})
	return started
}

// Close stops the debounce timer and the worker. Pending events are
// dropped.
func (c *Coalescer) Close() {
	if c == nil {
		return
	}

	c.closeOnce.Do(func() {
		c.startOnce.Do(func() {})

		c.mu.Lock()
		c.closed = true
		if c.timer != nil {
			c.timer.Stop()
		}
		pending := len(c.queue)
		c.queue = nil
		started := c.started
		c.mu.Unlock()

		close(c.closeCh)
		if started {
			<-c.done
		}
		if pending > 0 {
			logger.Debug("dropped pending events on close", "count", pending)
		}
	})
}

// Enqueue adds e to the pending queue and re-arms the debounce timer.
func (c *Coalescer) Enqueue(e events.Event) {
	if c == nil {
		return
	}
	if isNilEvent(e) {
		logger.Debug("dropping nil event")
		c.countDropped(context.Background(), "", "nil")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.appendLocked(e)
	c.pruneLocked()
	if c.started {
		c.armLocked()
	}
}

// Pending returns the number of events waiting to be drained.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// appendLocked adds e at the tail. A pending event of the same collapsible
// kind is removed first so the queue stays in arrival order.
func (c *Coalescer) appendLocked(e events.Event) {
	if c.collapsible[e.Kind()] {
		for i, pending := range c.queue {
			if pending.Kind() == e.Kind() {
				c.countDropped(context.Background(), pending.Kind(), "collapsed")
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	}
	c.queue = append(c.queue, e)
}

// pruneLocked drops the oldest non-notification events until at most bound
// of them are pending. Notifications are never pruned.
func (c *Coalescer) pruneLocked() {
	count := 0
	for _, pending := range c.queue {
		if !events.IsNotification(pending) {
			count++
		}
	}

	for i := 0; count > c.bound && i < len(c.queue); {
		if events.IsNotification(c.queue[i]) {
			i++
			continue
		}
		logger.Debug("pruning event from full queue", "kind", string(c.queue[i].Kind()))
		c.countDropped(context.Background(), c.queue[i].Kind(), "pruned")
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		count--
	}
}

func (c *Coalescer) armLocked() {
	if c.delay <= 0 {
		c.signalDrain()
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.delay, c.signalDrain)
		return
	}
	c.timer.Reset(c.delay)
}

func (c *Coalescer) signalDrain() {
	select {
	case c.drainSignal <- struct{}{}:
	default:
	}
}

func (c *Coalescer) run() {
	defer close(c.done)

	for {
		select {
		case <-c.closeCh:
			return
		case <-c.drainSignal:
		}
		c.drain()
	}
}

// drain dispatches events in arrival order until it sees the queue empty.
func (c *Coalescer) drain() {
	ctx, span := tracer.Start(c.baseContext, "drain event queue")
	defer span.End()

	dispatched := 0
	for {
		e, ok := c.next()
		if !ok {
			break
		}
		if c.dispatch(ctx, e) {
			dispatched++
		}
	}
	span.SetAttributes(attribute.Int("events.dispatched", dispatched))
}

func (c *Coalescer) next() (events.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.queue) == 0 {
		return nil, false
	}
	e := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return e, true
}

func (c *Coalescer) dispatch(ctx context.Context, e events.Event) bool {
	u, ok := c.match(e)
	if !ok {
		logger.Debug("no rule matched event", "kind", string(e.Kind()), "package", e.Package())
		c.countDropped(ctx, e.Kind(), "unmatched")
		return false
	}
	if !u.HasFeedback() {
		logger.Debug("rule produced no feedback", "kind", string(e.Kind()))
		c.countDropped(ctx, e.Kind(), "empty")
		return false
	}

	if u.Text() == "" {
		// Earcon-only feedback neither joins nor breaks a burst.
		u.Flags |= utterance.FlagNoSpeech
	} else {
		// Bursts of the same kind replace each other.
		if e.Kind() == c.lastKind {
			u.Mode = utterance.QueueModeInterrupt
		}
		c.lastKind = e.Kind()
	}

	trace.SpanFromContext(ctx).AddEvent("dispatch", trace.WithAttributes(
		attribute.String("event.kind", string(e.Kind())),
		attribute.String("utterance.mode", u.Mode.String()),
	))
	if c.sink != nil {
		c.sink.SpeakUtterance(u)
	}
	return true
}

// match consults the rule processor. A panicking processor counts as no
// match.
func (c *Coalescer) match(e events.Event) (u utterance.Utterance, ok bool) {
	if c.rules == nil {
		return utterance.Utterance{}, false
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("rule processor panicked", "kind", string(e.Kind()), "panic", recovered)
			u, ok = utterance.Utterance{}, false
		}
	}()
	return c.rules.Match(e)
}

func (c *Coalescer) countDropped(ctx context.Context, kind events.Kind, reason string) {
	if c.dropped == nil {
		return
	}
	c.dropped.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event.kind", string(kind)),
		attribute.String("reason", reason),
	))
}

func isNilEvent(e events.Event) bool {
	if e == nil {
		return true
	}

	v := reflect.ValueOf(e)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
