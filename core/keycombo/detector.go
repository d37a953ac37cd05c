package keycombo

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Listener is invoked when a chord is performed. Returning false lets the
// detector keep looking for another exact match in the table.
type Listener func(id string) bool

// Detector tracks one gesture at a time: a gesture starts with the first key
// down and ends when every key is up again.
type Detector struct {
	mu sync.Mutex

	combos   []Combo
	listener Listener

	keyCount        int
	performedCombo  bool
	hasPartialMatch bool

	performed metric.Int64Counter
}

type DetectorOption func(*Detector)

// WithCombos replaces the default combo table. Table order is the tie-break
// between chords that match the same event.
func WithCombos(combos []Combo) DetectorOption {
	return func(d *Detector) {
		d.combos = append([]Combo(nil), combos...)
	}
}

func WithListener(listener Listener) DetectorOption {
	return func(d *Detector) {
		d.listener = listener
	}
}

func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{combos: DefaultCombos()}
	for _, opt := range opts {
		opt(d)
	}

	counter, err := meter.Int64Counter("keycombo.performed",
		metric.WithDescription("Number of key chords performed"))
	if err != nil {
		logger.Warn("failed to create performed combo counter", "error", err)
	}
	d.performed = counter
	return d
}

// SetListener replaces the listener. A nil listener rejects every chord.
func (d *Detector) SetListener(listener Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listener = listener
}

func (d *Detector) Combos() []Combo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Combo(nil), d.combos...)
}

// OnKeyEvent classifies event and reports whether it was consumed.
func (d *Detector) OnKeyEvent(event Event) bool {
	if d == nil {
		return false
	}

	switch event.Action {
	case ActionDown:
		return d.onKeyDown(event)
	case ActionMultiple:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.hasPartialMatch
	case ActionUp:
		return d.onKeyUp()
	}
	return false
}

func (d *Detector) onKeyDown(event Event) bool {
	d.mu.Lock()
	d.keyCount++

	if event.Modifiers.IsEmpty() {
		d.mu.Unlock()
		return false
	}

	if d.performedCombo {
		d.mu.Unlock()
		return true
	}

	d.hasPartialMatch = false
	combos := d.combos
	listener := d.listener
	d.mu.Unlock()

	var matched *Combo
	partial := false
	for i := range combos {
		combo := combos[i]
		if combo.matchesExactly(event) && listener != nil && d.invoke(listener, combo) {
			matched = &combo
			break
		}
		if combo.matchesPartially(event) {
			partial = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if matched != nil {
		d.performedCombo = true
		if d.performed != nil {
			d.performed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("combo", matched.ID)))
		}
		logger.Debug("key combo performed", "combo", matched.ID, "chord", matched.String())
		return true
	}

	d.hasPartialMatch = partial
	return partial
}

// invoke runs the listener outside the lock so it may call back into the
// detector.
func (d *Detector) invoke(listener Listener, combo Combo) (handled bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("key combo listener panicked", "combo", combo.ID, "panic", recovered)
			handled = false
		}
	}()
	return listener(combo.ID)
}

func (d *Detector) onKeyUp() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	handled := d.performedCombo || d.hasPartialMatch

	if d.keyCount > 0 {
		d.keyCount--
	}
	if d.keyCount == 0 {
		d.performedCombo = false
		d.hasPartialMatch = false
	}

	return handled
}
