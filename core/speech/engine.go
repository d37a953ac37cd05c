package speech

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/koscakluka/ema-access/core/utterance"
)

// ErrNoEngineAvailable is reported by [Controller.Err] once every engine
// candidate has been dropped.
var ErrNoEngineAvailable = errors.New("no speech engine available")

// Directive tells the engine what to do with audio it is already playing.
type Directive int

const (
	// DirectiveFlush drops whatever the engine is playing before speaking.
	DirectiveFlush Directive = iota
	// DirectiveAppend speaks after the engine's current audio.
	DirectiveAppend
	// DirectiveFlushAll drops audio from every producer sharing the engine.
	DirectiveFlushAll
)

func (d Directive) String() string {
	switch d {
	case DirectiveFlush:
		return "flush"
	case DirectiveAppend:
		return "append"
	case DirectiveFlushAll:
		return "flush_all"
	default:
		return "unknown"
	}
}

// Request is one fragment handed to an engine. UtteranceID is echoed back in
// the completion notification.
type Request struct {
	UtteranceID string
	Text        string
	Directive   Directive
	Params      utterance.Params
}

type Engine interface {
	Speak(request Request) error
	Stop() error
	SetPitch(pitch float64) error
	SetRate(rate float64) error
	Shutdown() error
}

// GlobalStopper is implemented by engines that can silence every producer
// sharing their output channel, not only this controller.
type GlobalStopper interface {
	StopAll() error
}

// EngineBinding creates engines by name. A synchronous error from
// Initialize is a failed initialization; success is reported later through
// [EngineListener.OnInitialized].
type EngineBinding interface {
	Initialize(ctx context.Context, name string, listener EngineListener) error
}

// EngineListener receives engine notifications from any goroutine.
type EngineListener interface {
	OnInitialized(name string, engine Engine, err error)
	OnUtteranceCompleted(utteranceID string, ok bool)
	OnEngineCrashed(name string, err error)
}

// engineClient wraps the active engine so that every call is panic safe and
// capabilities are resolved once.
type engineClient struct {
	name   string
	base   Engine
	global GlobalStopper
}

func newEngineClient(name string, engine Engine) *engineClient {
	if isNilEngine(engine) {
		return nil
	}

	client := &engineClient{name: name, base: engine}
	if global, ok := engine.(GlobalStopper); ok {
		client.global = global
	}
	return client
}

func (e *engineClient) Speak(request Request) error {
	if e == nil {
		return ErrNoEngineAvailable
	}
	return e.call("speak", func() error { return e.base.Speak(request) })
}

func (e *engineClient) Stop() error {
	if e == nil {
		return nil
	}
	return e.call("stop", e.base.Stop)
}

// StopAll prefers the engine's global stop. Engines without one get an empty
// flush-all request, which is how shared output channels are cleared.
func (e *engineClient) StopAll() error {
	if e == nil {
		return nil
	}
	if e.global != nil {
		return e.call("stop all", e.global.StopAll)
	}
	return e.call("stop all", func() error {
		return e.base.Speak(Request{Directive: DirectiveFlushAll})
	})
}

func (e *engineClient) SetVoice(pitch, rate float64) error {
	if e == nil {
		return ErrNoEngineAvailable
	}
	return errors.Join(
		e.call("set pitch", func() error { return e.base.SetPitch(pitch) }),
		e.call("set rate", func() error { return e.base.SetRate(rate) }),
	)
}

func (e *engineClient) Shutdown() error {
	if e == nil {
		return nil
	}
	return e.call("shutdown", e.base.Shutdown)
}

func (e *engineClient) call(operation string, run func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("engine %s panicked during %s: %v", e.name, operation, recovered)
		}
	}()

	if err = run(); err != nil {
		return fmt.Errorf("engine %s failed to %s: %w", e.name, operation, err)
	}
	return nil
}

func isNilEngine(engine Engine) bool {
	if engine == nil {
		return true
	}

	v := reflect.ValueOf(engine)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
