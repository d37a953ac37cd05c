package coalescer

import (
	"time"

	"github.com/koscakluka/ema-access/core/events"
)

const defaultQueueBound = 10

// DefaultCollapsibleKinds are the bursty kinds where only the latest pending
// event matters.
var DefaultCollapsibleKinds = []events.Kind{
	events.KindWindowContentChanged,
	events.KindViewScrolled,
}

type CoalescerOption func(*Coalescer)

// WithDelay sets the debounce delay. Every arrival pushes the drain back by
// delay; zero drains as soon as the worker is free.
func WithDelay(delay time.Duration) CoalescerOption {
	return func(c *Coalescer) {
		if delay >= 0 {
			c.delay = delay
		}
	}
}

// WithQueueBound caps the number of pending non-notification events.
func WithQueueBound(bound int) CoalescerOption {
	return func(c *Coalescer) {
		if bound > 0 {
			c.bound = bound
		}
	}
}

// WithCollapsibleKinds replaces [DefaultCollapsibleKinds].
func WithCollapsibleKinds(kinds ...events.Kind) CoalescerOption {
	return func(c *Coalescer) {
		c.collapsible = make(map[events.Kind]bool, len(kinds))
		for _, kind := range kinds {
			c.collapsible[kind] = true
		}
	}
}
