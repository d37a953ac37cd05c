package speech

import (
	"sync"

	"github.com/koscakluka/ema-access/core/utterance"
)

// message is anything the worker handles. Producers never block: the mailbox
// grows as needed and the worker drains it in arrival order.
type message interface {
	isMessage()
}

type speakMessage struct {
	utterance utterance.Utterance
	epoch     uint64
}

type interruptMessage struct {
	// boundary is the first index allocated after the interrupt.
	boundary int64
	global   bool
}

type startMessage struct{}

type setEngineMessage struct {
	name string
}

type initializedMessage struct {
	generation uint64
	name       string
	engine     Engine
	err        error
}

type completedMessage struct {
	generation  uint64
	utteranceID string
	ok          bool
}

type crashedMessage struct {
	generation uint64
	name       string
	err        error
}

func (speakMessage) isMessage()       {}
func (interruptMessage) isMessage()   {}
func (startMessage) isMessage()       {}
func (setEngineMessage) isMessage()   {}
func (initializedMessage) isMessage() {}
func (completedMessage) isMessage()   {}
func (crashedMessage) isMessage()     {}

type mailbox struct {
	mu       sync.Mutex
	messages []message
	closed   bool

	updateSignal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{updateSignal: make(chan struct{}, 1)}
}

// post appends msg and wakes the worker. It reports false once the mailbox
// is closed.
func (m *mailbox) post(msg message) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.messages = append(m.messages, msg)
	m.mu.Unlock()

	m.signalUpdate()
	return true
}

func (m *mailbox) signalUpdate() {
	select {
	case m.updateSignal <- struct{}{}:
	default:
	}
}

// drain takes every pending message.
func (m *mailbox) drain() []message {
	m.mu.Lock()
	defer m.mu.Unlock()

	messages := m.messages
	m.messages = nil
	return messages
}

// close rejects further posts and returns whatever was still pending.
func (m *mailbox) close() []message {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	messages := m.messages
	m.messages = nil
	return messages
}
