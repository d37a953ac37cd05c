package events

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

type Event interface {
	ID() string
	Kind() Kind
	Package() string
	Timestamp() time.Time
}

type Base struct {
	id          string
	kind        Kind
	packageName string
	timestamp   time.Time
}

// RebaseOption overrides the defaults filled in by NewBase.
type RebaseOption func(*Base)

func NewBase(kind Kind, opts ...RebaseOption) Base {
	base := Base{id: uuid.NewString(), kind: kind, timestamp: time.Now()}
	for _, opt := range opts {
		opt(&base)
	}
	return base
}

// WithPackage sets the application package the event originated from.
func WithPackage(packageName string) RebaseOption {
	return func(b *Base) {
		b.packageName = packageName
	}
}

func WithTimestamp(timestamp time.Time) RebaseOption {
	return func(b *Base) {
		b.timestamp = timestamp
	}
}

func WithID(id string) RebaseOption {
	return func(b *Base) {
		b.id = id
	}
}

func (b Base) ID() string {
	return b.id
}

func (b Base) Kind() Kind {
	return b.kind
}

func (b Base) Package() string {
	return b.packageName
}

func (b Base) Timestamp() time.Time {
	return b.timestamp
}
