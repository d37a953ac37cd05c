package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/koscakluka/ema-access/core/speech"
)

const closeGracePeriod = time.Second

var errConnectionClosed = errors.New("engine connection closed")

// engine is one open engine connection. Writes are serialized; reads happen
// on the read loop only.
type engine struct {
	name     string
	conn     *gorilla.Conn
	listener speech.EngineListener

	writeMu sync.Mutex
	closed  atomic.Bool
	done    chan struct{}
}

func newEngine(name string, conn *gorilla.Conn, listener speech.EngineListener) *engine {
	return &engine{
		name:     name,
		conn:     conn,
		listener: listener,
		done:     make(chan struct{}),
	}
}

func (e *engine) Speak(request speech.Request) error {
	return e.send(newSpeakMessage(request))
}

func (e *engine) Stop() error {
	return e.send(controlMessage{Type: typeStop})
}

func (e *engine) StopAll() error {
	return e.send(controlMessage{Type: typeStopAll})
}

func (e *engine) SetPitch(pitch float64) error {
	return e.send(valueMessage{Type: typePitch, Value: pitch})
}

func (e *engine) SetRate(rate float64) error {
	return e.send(valueMessage{Type: typeRate, Value: rate})
}

// Shutdown closes the connection without reporting a crash and waits for the
// read loop to exit.
func (e *engine) Shutdown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.writeMu.Lock()
	closeErr := e.conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod))
	e.writeMu.Unlock()

	if err := e.conn.Close(); err != nil {
		return fmt.Errorf("failed to close engine %s: %w", e.name, errors.Join(closeErr, err))
	}

	select {
	case <-e.done:
	case <-time.After(closeGracePeriod):
		logger.Warn("engine read loop did not stop", "engine", e.name)
	}
	return nil
}

func (e *engine) send(msg any) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.closed.Load() {
		return errConnectionClosed
	}
	if err := e.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to engine %s: %w", e.name, err)
	}
	return nil
}

func (e *engine) readLoop() {
	defer close(e.done)

	ready := false
	fail := func(err error) {
		if e.closed.Swap(true) {
			return
		}
		_ = e.conn.Close()
		if ready {
			e.listener.OnEngineCrashed(e.name, err)
		} else {
			e.listener.OnInitialized(e.name, nil, err)
		}
	}

	for {
		msgType, data, err := e.conn.ReadMessage()
		if err != nil {
			if !e.closed.Load() {
				logger.Warn("engine connection lost", "engine", e.name, "error", err)
			}
			fail(fmt.Errorf("engine %s connection lost: %w", e.name, err))
			return
		}
		if msgType != gorilla.TextMessage {
			continue
		}

		var msg incomingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Debug("ignoring malformed engine message", "engine", e.name, "error", err)
			continue
		}

		switch msg.Type {
		case typeReady:
			if ready {
				continue
			}
			ready = true
			e.listener.OnInitialized(e.name, e, nil)

		case typeCompleted:
			if !ready {
				logger.Debug("ignoring completion before ready", "engine", e.name, "id", msg.ID)
				continue
			}
			e.listener.OnUtteranceCompleted(msg.ID, msg.OK)

		case typeError:
			fail(fmt.Errorf("engine %s reported an error: %s", e.name, msg.Message))
			return

		default:
			logger.Debug("ignoring unknown engine message", "engine", e.name, "type", msg.Type)
		}
	}
}
