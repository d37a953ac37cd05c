package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-access/core/utterance"
)

var errSpeakFailed = errors.New("speak failed")

type recordingEngine struct {
	mu sync.Mutex

	name       string
	requests   []Request
	stops      int
	pitches    []float64
	rates      []float64
	shutdowns  int
	failSpeaks int
}

func (e *recordingEngine) Speak(request Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failSpeaks != 0 {
		if e.failSpeaks > 0 {
			e.failSpeaks--
		}
		return errSpeakFailed
	}
	e.requests = append(e.requests, request)
	return nil
}

func (e *recordingEngine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	return nil
}

func (e *recordingEngine) SetPitch(pitch float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pitches = append(e.pitches, pitch)
	return nil
}

func (e *recordingEngine) SetRate(rate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates = append(e.rates, rate)
	return nil
}

func (e *recordingEngine) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdowns++
	return nil
}

func (e *recordingEngine) Requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.requests...)
}

func (e *recordingEngine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func (e *recordingEngine) Pitches() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float64(nil), e.pitches...)
}

func (e *recordingEngine) Shutdowns() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdowns
}

type globalEngine struct {
	*recordingEngine

	stopAllMu sync.Mutex
	stopAlls  int
}

func (e *globalEngine) StopAll() error {
	e.stopAllMu.Lock()
	defer e.stopAllMu.Unlock()
	e.stopAlls++
	return nil
}

func (e *globalEngine) StopAlls() int {
	e.stopAllMu.Lock()
	defer e.stopAllMu.Unlock()
	return e.stopAlls
}

// fakeBinding hands out pre-built engines by name. With manual set it never
// reports initialization on its own.
type fakeBinding struct {
	mu sync.Mutex

	engines   map[string]Engine
	initErrs  map[string]error
	manual    bool
	inits     []string
	listeners []EngineListener
}

func newFakeBinding(engines map[string]Engine) *fakeBinding {
	return &fakeBinding{engines: engines, initErrs: map[string]error{}}
}

func (b *fakeBinding) Initialize(_ context.Context, name string, listener EngineListener) error {
	b.mu.Lock()
	b.inits = append(b.inits, name)
	b.listeners = append(b.listeners, listener)
	err := b.initErrs[name]
	engine := b.engines[name]
	manual := b.manual
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if !manual {
		listener.OnInitialized(name, engine, nil)
	}
	return nil
}

func (b *fakeBinding) Inits() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.inits...)
}

func (b *fakeBinding) lastListener(t *testing.T) EngineListener {
	t.Helper()

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.listeners) == 0 {
		t.Fatalf("expected an engine listener, got none")
	}
	return b.listeners[len(b.listeners)-1]
}

// complete reports the request as spoken on the most recent engine.
func (b *fakeBinding) complete(t *testing.T, request Request) {
	t.Helper()
	b.lastListener(t).OnUtteranceCompleted(request.UtteranceID, true)
}

type statusRecorder struct {
	mu       sync.Mutex
	statuses []utterance.Status
}

func (r *statusRecorder) record(status utterance.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *statusRecorder) Statuses() []utterance.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]utterance.Status(nil), r.statuses...)
}

type recordingPlayer struct {
	mu      sync.Mutex
	earcons []string
	haptics []string
}

func (p *recordingPlayer) PlayEarcon(id string, _, _ float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.earcons = append(p.earcons, id)
}

func (p *recordingPlayer) PlayHaptic(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.haptics = append(p.haptics, id)
}

func (p *recordingPlayer) Earcons() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.earcons...)
}

type fakeRinger struct {
	mu      sync.Mutex
	ringing bool
	volume  int
	max     int
	history []int
}

func (r *fakeRinger) IsRinging() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ringing
}

func (r *fakeRinger) Volume() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume, r.max
}

func (r *fakeRinger) SetVolume(volume int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = volume
	r.history = append(r.history, volume)
}

func (r *fakeRinger) History() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.history...)
}

func newStartedController(t *testing.T, binding EngineBinding, opts ...ControllerOption) *Controller {
	t.Helper()

	controller := NewController(binding, opts...)
	if !controller.Start(context.Background()) {
		t.Fatalf("expected controller to start")
	}
	t.Cleanup(func() { _ = controller.Close() })
	return controller
}

// syncWorker returns once the worker has handled everything posted before
// the call.
func syncWorker(t *testing.T, controller *Controller) {
	t.Helper()

	done := make(chan struct{}, 1)
	barrier := utterance.Utterance{
		Fragments: []utterance.Fragment{{Earcons: []string{"sync"}}},
		Flags:     utterance.FlagNoSpeech,
		OnComplete: func(utterance.Status) {
			done <- struct{}{}
		},
	}
	if controller.SpeakUtterance(barrier) < 0 {
		t.Fatalf("expected barrier utterance to be accepted")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for speech worker")
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

func waitForRequests(t *testing.T, engine *recordingEngine, count int) []Request {
	t.Helper()

	var requests []Request
	waitForCondition(t, 2*time.Second, "engine requests", func() bool {
		requests = engine.Requests()
		return len(requests) >= count
	})
	return requests
}
