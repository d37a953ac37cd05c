package speech

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-access/core/utterance"
)

func TestSpeakIndicesStrictlyIncreaseAcrossFailover(t *testing.T) {
	engineA := &recordingEngine{name: "A", failSpeaks: -1}
	engineB := &recordingEngine{name: "B"}
	binding := newFakeBinding(map[string]Engine{"A": engineA, "B": engineB})
	controller := NewController(binding, WithEngines("A", "B"))
	t.Cleanup(func() { _ = controller.Close() })

	recorders := make([]*statusRecorder, 5)
	indices := make([]int64, 0, len(recorders))
	for i := range recorders {
		recorders[i] = &statusRecorder{}
		indices = append(indices, controller.Speak(fmt.Sprintf("item %d", i), utterance.QueueModeQueue, 0, nil, recorders[i].record))
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			t.Fatalf("expected strictly increasing indices, got %v", indices)
		}
	}

	controller.Start(t.Context())

	for i := 2; i < len(indices); i++ {
		requests := waitForRequests(t, engineB, i-1)
		request := requests[i-2]
		if request.UtteranceID != utteranceID(indices[i]) {
			t.Fatalf("expected engine B to speak %q, got %q", utteranceID(indices[i]), request.UtteranceID)
		}
		binding.complete(t, request)
	}

	waitForCondition(t, 2*time.Second, "last utterance spoken", func() bool {
		return slices.Equal(recorders[4].Statuses(), []utterance.Status{utterance.StatusSpoken})
	})
	for i := range 2 {
		if got := recorders[i].Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusError}) {
			t.Fatalf("expected utterance %d to fail on engine A, got %v", i, got)
		}
	}

	if got := controller.Engine(); got != "B" {
		t.Fatalf("expected engine B, got %q", got)
	}
	if next := controller.Speak("after", utterance.QueueModeQueue, 0, nil, nil); next <= indices[len(indices)-1] {
		t.Fatalf("expected index after failover to exceed %d, got %d", indices[len(indices)-1], next)
	}
}

func TestUninterruptibleIsNotFlushedByInterrupt(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	alert := &statusRecorder{}
	next := &statusRecorder{}
	controller.Speak("Alert", utterance.QueueModeUninterruptible, 0, nil, alert.record)
	requests := waitForRequests(t, engine, 1)
	if requests[0].Directive != DirectiveFlush {
		t.Fatalf("expected uninterruptible utterance to flush, got %s", requests[0].Directive)
	}
	if got := controller.State(); got != StateSpeakingUninterruptible {
		t.Fatalf("expected %s, got %s", StateSpeakingUninterruptible, got)
	}

	controller.Speak("Next", utterance.QueueModeInterrupt, 0, nil, next.record)
	syncWorker(t, controller)

	if got := engine.Requests(); len(got) != 1 {
		t.Fatalf("expected interrupt to wait for the uninterruptible utterance, got %d requests", len(got))
	}
	if got := engine.Stops(); got != 0 {
		t.Fatalf("expected no engine stop, got %d", got)
	}
	if got := alert.Statuses(); len(got) != 0 {
		t.Fatalf("expected uninterruptible utterance to keep speaking, got %v", got)
	}

	binding.complete(t, requests[0])
	requests = waitForRequests(t, engine, 2)
	if requests[1].Text != "Next" || requests[1].Directive != DirectiveAppend {
		t.Fatalf("expected queued append of %q, got %q (%s)", "Next", requests[1].Text, requests[1].Directive)
	}
	if got := alert.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusSpoken}) {
		t.Fatalf("expected alert to be spoken, got %v", got)
	}
}

func TestInterruptReplacesQueuedSpeech(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	hello := &statusRecorder{}
	world := &statusRecorder{}
	controller.Speak("Hello", utterance.QueueModeQueue, 0, nil, hello.record)
	waitForRequests(t, engine, 1)

	controller.Speak("World", utterance.QueueModeInterrupt, 0, nil, world.record)
	requests := waitForRequests(t, engine, 2)
	if requests[1].Text != "World" || requests[1].Directive != DirectiveFlush {
		t.Fatalf("expected %q to flush, got %q (%s)", "World", requests[1].Text, requests[1].Directive)
	}
	if got := hello.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusInterrupted}) {
		t.Fatalf("expected Hello to be interrupted, got %v", got)
	}

	// The engine still reports Hello; it must not complete World.
	binding.complete(t, requests[0])
	syncWorker(t, controller)
	if got := world.Statuses(); len(got) != 0 {
		t.Fatalf("expected World to keep speaking, got %v", got)
	}

	binding.complete(t, requests[1])
	waitForCondition(t, 2*time.Second, "World spoken", func() bool {
		return slices.Equal(world.Statuses(), []utterance.Status{utterance.StatusSpoken})
	})
	if got := len(engine.Requests()); got != 2 {
		t.Fatalf("expected only two engine requests, got %d", got)
	}
}

func TestCompletionActionsFireExactlyOnce(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	first := controller.Speak("one", utterance.QueueModeQueue, 0, nil, nil)
	second := controller.Speak("two", utterance.QueueModeQueue, 0, nil, nil)

	var firstCount, secondCount, laterCount atomic.Int32
	controller.AddCompletionAction(first, func(utterance.Status) { firstCount.Add(1) })
	controller.AddCompletionAction(second, func(utterance.Status) { secondCount.Add(1) })
	controller.AddCompletionAction(second+10, func(status utterance.Status) {
		if status != utterance.StatusInterrupted {
			t.Errorf("expected pending action to be interrupted, got %s", status)
		}
		laterCount.Add(1)
	})

	requests := waitForRequests(t, engine, 1)
	binding.complete(t, requests[0])
	requests = waitForRequests(t, engine, 2)
	if firstCount.Load() != 1 || secondCount.Load() != 0 {
		t.Fatalf("expected only the first action, got first=%d second=%d", firstCount.Load(), secondCount.Load())
	}

	binding.complete(t, requests[1])
	waitForCondition(t, 2*time.Second, "second action", func() bool { return secondCount.Load() == 1 })

	controller.Interrupt()
	if got := laterCount.Load(); got != 1 {
		t.Fatalf("expected interrupt to fire the pending action once, got %d", got)
	}

	controller.Interrupt()
	syncWorker(t, controller)
	if firstCount.Load() != 1 || secondCount.Load() != 1 || laterCount.Load() != 1 {
		t.Fatalf("expected every action exactly once, got first=%d second=%d later=%d",
			firstCount.Load(), secondCount.Load(), laterCount.Load())
	}
}

func TestRemovedCompletionActionDoesNotFire(t *testing.T) {
	controller := NewController(nil)
	t.Cleanup(func() { _ = controller.Close() })

	var fired atomic.Bool
	id := controller.AddCompletionAction(1, func(utterance.Status) { fired.Store(true) })
	if !controller.RemoveCompletionAction(id) {
		t.Fatalf("expected action to be removed")
	}
	if controller.RemoveCompletionAction(id) {
		t.Fatalf("expected second removal to report false")
	}

	controller.Interrupt()
	if fired.Load() {
		t.Fatalf("expected removed action not to fire")
	}
}

func TestInterruptCompletesWithoutEngineNotification(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	status := &statusRecorder{}
	controller.Speak("one", utterance.QueueModeInterrupt, 0, nil, status.record)
	requests := waitForRequests(t, engine, 1)

	controller.Interrupt()
	if got := status.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusInterrupted}) {
		t.Fatalf("expected interrupt to complete the utterance immediately, got %v", got)
	}
	waitForCondition(t, 2*time.Second, "engine stop", func() bool { return engine.Stops() == 1 })

	binding.complete(t, requests[0])
	syncWorker(t, controller)
	if got := status.Statuses(); len(got) != 1 {
		t.Fatalf("expected a single completion, got %v", got)
	}
	if got := controller.State(); got != StateIdle {
		t.Fatalf("expected %s, got %s", StateIdle, got)
	}
}

func TestInterruptDropsUtterancesWaitingForEngine(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	binding.manual = true
	controller := newStartedController(t, binding, WithEngines("A"))

	first := &statusRecorder{}
	second := &statusRecorder{}
	controller.Speak("one", utterance.QueueModeQueue, 0, nil, first.record)
	controller.Speak("two", utterance.QueueModeQueue, 0, nil, second.record)
	syncWorker(t, controller)

	controller.Interrupt()
	for _, recorder := range []*statusRecorder{first, second} {
		if got := recorder.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusInterrupted}) {
			t.Fatalf("expected waiting utterance to be interrupted, got %v", got)
		}
	}

	binding.lastListener(t).OnInitialized("A", engine, nil)
	waitForCondition(t, 2*time.Second, "engine ready", func() bool { return controller.Engine() == "A" })
	syncWorker(t, controller)
	if got := engine.Requests(); len(got) != 0 {
		t.Fatalf("expected nothing spoken after interrupt, got %v", got)
	}

	controller.Speak("three", utterance.QueueModeQueue, 0, nil, nil)
	requests := waitForRequests(t, engine, 1)
	if requests[0].Text != "three" {
		t.Fatalf("expected %q, got %q", "three", requests[0].Text)
	}
}

func TestFailoverResetsFailureCounter(t *testing.T) {
	engineA := &recordingEngine{name: "A", failSpeaks: -1}
	engineB := &recordingEngine{name: "B", failSpeaks: 1}
	binding := newFakeBinding(map[string]Engine{"A": engineA, "B": engineB})
	controller := NewController(binding, WithEngines("A", "B"))
	t.Cleanup(func() { _ = controller.Close() })

	for i := range 4 {
		controller.Speak(fmt.Sprintf("item %d", i), utterance.QueueModeQueue, 0, nil, nil)
	}
	controller.Start(t.Context())

	requests := waitForRequests(t, engineB, 1)
	if requests[0].Text != "item 3" {
		t.Fatalf("expected %q on engine B, got %q", "item 3", requests[0].Text)
	}

	// A gets a retry, then B gets a retry of its own instead of being dropped.
	expected := []string{"A", "A", "B", "B"}
	if got := binding.Inits(); !slices.Equal(got, expected) {
		t.Fatalf("expected initializations %v, got %v", expected, got)
	}
	if got := engineA.Shutdowns(); got != 2 {
		t.Fatalf("expected engine A to be shut down twice, got %d", got)
	}
	if err := controller.Err(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestInitializationFailureCountsAsFailure(t *testing.T) {
	engineB := &recordingEngine{name: "B"}
	binding := newFakeBinding(map[string]Engine{"B": engineB})
	binding.initErrs["A"] = errors.New("missing voice data")
	controller := newStartedController(t, binding, WithEngines("A", "B"))

	controller.Speak("hello", utterance.QueueModeQueue, 0, nil, nil)
	requests := waitForRequests(t, engineB, 1)
	if requests[0].Text != "hello" {
		t.Fatalf("expected %q, got %q", "hello", requests[0].Text)
	}
	if got := binding.Inits(); !slices.Equal(got, []string{"A", "A", "B"}) {
		t.Fatalf("expected A to be retried once, got %v", got)
	}
}

func TestEngineCrashTriggersReinitialization(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	status := &statusRecorder{}
	controller.Speak("one", utterance.QueueModeQueue, 0, nil, status.record)
	waitForRequests(t, engine, 1)

	binding.lastListener(t).OnEngineCrashed("A", errors.New("process died"))
	waitForCondition(t, 2*time.Second, "reinitialization", func() bool {
		return slices.Equal(binding.Inits(), []string{"A", "A"})
	})
	waitForCondition(t, 2*time.Second, "lost utterance", func() bool {
		return slices.Equal(status.Statuses(), []utterance.Status{utterance.StatusError})
	})
}

func TestNoEngineCandidatesHaltsSpeech(t *testing.T) {
	controller := newStartedController(t, newFakeBinding(nil))

	status := &statusRecorder{}
	controller.Speak("hello", utterance.QueueModeInterrupt, 0, nil, status.record)
	waitForCondition(t, 2*time.Second, "error completion", func() bool {
		return slices.Equal(status.Statuses(), []utterance.Status{utterance.StatusError})
	})
	if err := controller.Err(); !errors.Is(err, ErrNoEngineAvailable) {
		t.Fatalf("expected %v, got %v", ErrNoEngineAvailable, err)
	}
}

func TestExhaustedCandidatesHaltSpeech(t *testing.T) {
	engine := &recordingEngine{failSpeaks: -1}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	first := &statusRecorder{}
	second := &statusRecorder{}
	controller.Speak("one", utterance.QueueModeQueue, 0, nil, first.record)
	controller.Speak("two", utterance.QueueModeQueue, 0, nil, second.record)

	waitForCondition(t, 2*time.Second, "halt", func() bool {
		return errors.Is(controller.Err(), ErrNoEngineAvailable)
	})
	waitForCondition(t, 2*time.Second, "pending errors", func() bool {
		return len(first.Statuses()) == 1 && len(second.Statuses()) == 1
	})
	if got := second.Statuses(); got[0] != utterance.StatusError {
		t.Fatalf("expected pending utterance to fail, got %v", got)
	}

	later := &statusRecorder{}
	controller.Speak("three", utterance.QueueModeQueue, 0, nil, later.record)
	waitForCondition(t, 2*time.Second, "later error", func() bool {
		return slices.Equal(later.Statuses(), []utterance.Status{utterance.StatusError})
	})
}

func TestSecondInitializationIsIgnoredWhileInFlight(t *testing.T) {
	engineA := &recordingEngine{name: "A"}
	engineB := &recordingEngine{name: "B"}
	binding := newFakeBinding(map[string]Engine{"A": engineA, "B": engineB})
	binding.manual = true
	controller := newStartedController(t, binding, WithEngines("A", "B"))

	waitForCondition(t, 2*time.Second, "first initialization", func() bool {
		return len(binding.Inits()) == 1
	})

	controller.SetEngine("B")
	syncWorker(t, controller)
	if got := binding.Inits(); !slices.Equal(got, []string{"A"}) {
		t.Fatalf("expected switch to be ignored, got %v", got)
	}

	binding.lastListener(t).OnInitialized("A", engineA, nil)
	waitForCondition(t, 2*time.Second, "engine A ready", func() bool { return controller.Engine() == "A" })

	controller.SetEngine("B")
	waitForCondition(t, 2*time.Second, "switch to B", func() bool {
		return slices.Equal(binding.Inits(), []string{"A", "B"})
	})
	if got := engineA.Shutdowns(); got != 1 {
		t.Fatalf("expected engine A to be shut down, got %d", got)
	}
}

func TestSetEngineAnnouncesNewEngine(t *testing.T) {
	engineA := &recordingEngine{name: "A"}
	engineB := &recordingEngine{name: "B"}
	binding := newFakeBinding(map[string]Engine{"A": engineA, "B": engineB})
	controller := newStartedController(t, binding, WithEngines("A", "B"), WithEngineAnnouncement(true))

	waitForCondition(t, 2*time.Second, "engine A ready", func() bool { return controller.Engine() == "A" })
	controller.SetEngine("B")

	requests := waitForRequests(t, engineB, 1)
	if requests[0].Text != "Using B" {
		t.Fatalf("expected engine announcement, got %q", requests[0].Text)
	}
	if len(engineA.Requests()) != 0 {
		t.Fatalf("expected nothing spoken on engine A")
	}
}

func TestStopAllUsesGlobalStop(t *testing.T) {
	engine := &globalEngine{recordingEngine: &recordingEngine{}}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	controller.Speak("one", utterance.QueueModeInterrupt, 0, nil, nil)
	waitForRequests(t, engine.recordingEngine, 1)

	controller.StopAll()
	waitForCondition(t, 2*time.Second, "global stop", func() bool { return engine.StopAlls() == 1 })
	if got := engine.Stops(); got != 0 {
		t.Fatalf("expected no local stop, got %d", got)
	}
}

func TestStopAllWithoutGlobalStopFlushesEverything(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	controller.Speak("one", utterance.QueueModeInterrupt, 0, nil, nil)
	waitForRequests(t, engine, 1)

	controller.StopAll()
	requests := waitForRequests(t, engine, 2)
	if requests[1].Directive != DirectiveFlushAll || requests[1].Text != "" {
		t.Fatalf("expected empty flush-all request, got %+v", requests[1])
	}
}

func TestNoSpeechPlaysFeedbackOnly(t *testing.T) {
	engine := &recordingEngine{}
	player := &recordingPlayer{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"), WithFeedbackPlayer(player))

	status := &statusRecorder{}
	controller.SpeakUtterance(utterance.Utterance{
		Fragments:  []utterance.Fragment{{Text: "scrolled", Earcons: []string{"tick"}, Haptics: []string{"buzz"}}},
		Flags:      utterance.FlagNoSpeech,
		OnComplete: status.record,
	})

	waitForCondition(t, 2*time.Second, "feedback completion", func() bool {
		return slices.Equal(status.Statuses(), []utterance.Status{utterance.StatusSpoken})
	})
	if !slices.Contains(player.Earcons(), "tick") {
		t.Fatalf("expected earcon to play, got %v", player.Earcons())
	}
	if got := engine.Requests(); len(got) != 0 {
		t.Fatalf("expected no engine requests, got %v", got)
	}
}

func TestVoiceIsReconfiguredOnlyOnChange(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"), WithVoice(1.2, 1))

	for i, text := range []string{"one", "two"} {
		controller.Speak(text, utterance.QueueModeQueue, 0, nil, nil)
		requests := waitForRequests(t, engine, i+1)
		binding.complete(t, requests[i])
	}
	if got := engine.Pitches(); !slices.Equal(got, []float64{1.2}) {
		t.Fatalf("expected pitch to be set once, got %v", got)
	}

	controller.Speak("three", utterance.QueueModeQueue, 0, utterance.Params{utterance.ParamPitch: 2}, nil)
	waitForRequests(t, engine, 3)
	if got := engine.Pitches(); !slices.Equal(got, []float64{1.2, 2.4}) {
		t.Fatalf("expected pitch to be reapplied, got %v", got)
	}
	if got := engine.Stops(); got != 1 {
		t.Fatalf("expected speech to stop before reconfiguring, got %d stops", got)
	}
}

func TestFragmentsAreSpokenInOrder(t *testing.T) {
	engine := &recordingEngine{}
	player := &recordingPlayer{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"), WithFeedbackPlayer(player))

	status := &statusRecorder{}
	controller.SpeakUtterance(utterance.Utterance{
		Fragments: []utterance.Fragment{
			{Text: "Inbox", Earcons: []string{"focus"}},
			{Text: "3 unread", Params: utterance.Params{utterance.ParamVolume: 0.5}},
		},
		OnComplete: status.record,
	})

	requests := waitForRequests(t, engine, 1)
	if requests[0].Text != "Inbox" || requests[0].Directive != DirectiveFlush {
		t.Fatalf("expected first fragment to flush, got %+v", requests[0])
	}
	if !slices.Contains(player.Earcons(), "focus") {
		t.Fatalf("expected fragment earcon to play")
	}

	binding.complete(t, requests[0])
	requests = waitForRequests(t, engine, 2)
	if requests[1].Text != "3 unread" || requests[1].Directive != DirectiveAppend {
		t.Fatalf("expected second fragment to append, got %+v", requests[1])
	}
	if got := requests[1].Params[utterance.ParamVolume]; got != 0.5 {
		t.Fatalf("expected volume 0.5, got %v", got)
	}
	if got := status.Statuses(); len(got) != 0 {
		t.Fatalf("expected utterance to be in progress, got %v", got)
	}

	binding.complete(t, requests[1])
	waitForCondition(t, 2*time.Second, "utterance spoken", func() bool {
		return slices.Equal(status.Statuses(), []utterance.Status{utterance.StatusSpoken})
	})
}

func TestRepeatAndSpellLast(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	if controller.RepeatLast() {
		t.Fatalf("expected nothing to repeat")
	}

	controller.Speak("Hi", utterance.QueueModeInterrupt, 0, nil, nil)
	requests := waitForRequests(t, engine, 1)
	binding.complete(t, requests[0])
	syncWorker(t, controller)

	if !controller.RepeatLast() {
		t.Fatalf("expected repeat to be accepted")
	}
	requests = waitForRequests(t, engine, 2)
	if requests[1].Text != "Hi" {
		t.Fatalf("expected %q, got %q", "Hi", requests[1].Text)
	}
	binding.complete(t, requests[1])

	if !controller.SpellLast() {
		t.Fatalf("expected spell to be accepted")
	}
	requests = waitForRequests(t, engine, 3)
	if requests[2].Text != "capital H, i" {
		t.Fatalf("expected spelled text, got %q", requests[2].Text)
	}
}

type recordingListener struct {
	mu        sync.Mutex
	started   []int64
	completed []int64
}

func (l *recordingListener) OnUtteranceStarted(index int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started = append(l.started, index)
}

func (l *recordingListener) OnUtteranceCompleted(index int64, _ utterance.Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, index)
}

func (l *recordingListener) snapshot() ([]int64, []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int64(nil), l.started...), append([]int64(nil), l.completed...)
}

func TestStateHooksAndListener(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	listener := &recordingListener{}
	var speaking, idle atomic.Int32
	controller := newStartedController(t, binding,
		WithEngines("A"),
		WithUtteranceListener(listener),
		WithSpeakingHook(func() { speaking.Add(1) }),
		WithIdleHook(func() { idle.Add(1) }),
	)

	index := controller.Speak("one", utterance.QueueModeQueue, 0, nil, nil)
	requests := waitForRequests(t, engine, 1)
	if speaking.Load() != 1 || idle.Load() != 0 {
		t.Fatalf("expected speaking hook only, got speaking=%d idle=%d", speaking.Load(), idle.Load())
	}
	if got := controller.State(); got != StateSpeakingInterruptible {
		t.Fatalf("expected %s, got %s", StateSpeakingInterruptible, got)
	}

	binding.complete(t, requests[0])
	waitForCondition(t, 2*time.Second, "idle hook", func() bool { return idle.Load() == 1 })
	if controller.IsSpeaking() {
		t.Fatalf("expected controller to be idle")
	}

	started, completed := listener.snapshot()
	if !slices.Equal(started, []int64{index}) || !slices.Equal(completed, []int64{index}) {
		t.Fatalf("expected listener to see %d, got started=%v completed=%v", index, started, completed)
	}
}

func TestRingerIsLoweredWhileSpeaking(t *testing.T) {
	engine := &recordingEngine{}
	ringer := &fakeRinger{ringing: true, volume: 6, max: 9}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"), WithRinger(ringer))

	controller.Speak("Incoming call", utterance.QueueModeUninterruptible, 0, nil, nil)
	requests := waitForRequests(t, engine, 1)
	if got := ringer.History(); !slices.Equal(got, []int{3}) {
		t.Fatalf("expected ringer to be lowered to 3, got %v", got)
	}

	binding.complete(t, requests[0])
	waitForCondition(t, 2*time.Second, "ringer restored", func() bool {
		return slices.Equal(ringer.History(), []int{3, 6})
	})
}

func TestCloseInterruptsPendingUtterances(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := NewController(binding, WithEngines("A"))
	controller.Start(t.Context())

	status := &statusRecorder{}
	controller.Speak("one", utterance.QueueModeQueue, 0, nil, status.record)
	waitForRequests(t, engine, 1)

	if err := controller.Close(); err != nil {
		t.Fatalf("expected clean close, got %v", err)
	}
	if got := status.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusInterrupted}) {
		t.Fatalf("expected pending utterance to be interrupted, got %v", got)
	}
	if got := engine.Shutdowns(); got != 1 {
		t.Fatalf("expected engine shutdown, got %d", got)
	}

	late := &statusRecorder{}
	if index := controller.Speak("two", utterance.QueueModeQueue, 0, nil, late.record); index != -1 {
		t.Fatalf("expected closed controller to reject speech, got index %d", index)
	}
	if got := late.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusInterrupted}) {
		t.Fatalf("expected rejected utterance to be interrupted, got %v", got)
	}
	if err := controller.Close(); err != nil {
		t.Fatalf("expected second close to be a no-op, got %v", err)
	}
	if controller.Start(t.Context()) {
		t.Fatalf("expected closed controller not to start")
	}
}

func TestEmptySpeechIsIgnored(t *testing.T) {
	controller := NewController(nil)
	t.Cleanup(func() { _ = controller.Close() })

	before := controller.PeekNextIndex()
	if index := controller.Speak("   ", utterance.QueueModeInterrupt, 0, nil, nil); index != -1 {
		t.Fatalf("expected empty text to be ignored, got %d", index)
	}
	if got := controller.PeekNextIndex(); got != before {
		t.Fatalf("expected index %d to stay unused, got %d", before, got)
	}
}

func TestEmptyUtteranceCompletesWithError(t *testing.T) {
	controller := NewController(nil)
	t.Cleanup(func() { _ = controller.Close() })

	status := &statusRecorder{}
	if index := controller.Speak(" \t ", utterance.QueueModeQueue, 0, nil, status.record); index != -1 {
		t.Fatalf("expected whitespace text to be ignored, got %d", index)
	}
	if got := status.Statuses(); !slices.Equal(got, []utterance.Status{utterance.StatusError}) {
		t.Fatalf("expected one error completion, got %v", got)
	}
}

func TestCompletionActionMayInterruptAgain(t *testing.T) {
	engine := &recordingEngine{}
	binding := newFakeBinding(map[string]Engine{"A": engine})
	controller := newStartedController(t, binding, WithEngines("A"))

	index := controller.Speak("one", utterance.QueueModeQueue, 0, nil, nil)
	waitForRequests(t, engine, 1)

	var fired atomic.Int32
	controller.AddCompletionAction(index, func(utterance.Status) {
		fired.Add(1)
		controller.Interrupt()
	})

	controller.Interrupt()
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected action to run before Interrupt returned, got %d runs", got)
	}
	syncWorker(t, controller)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected action to run once, got %d", got)
	}
}

func TestEnginePanicIsTreatedAsFailure(t *testing.T) {
	engineB := &recordingEngine{name: "B"}
	binding := newFakeBinding(map[string]Engine{"A": panickingEngine{}, "B": engineB})
	controller := newStartedController(t, binding, WithEngines("A", "B"))

	controller.Speak("one", utterance.QueueModeQueue, 0, nil, nil)
	controller.Speak("two", utterance.QueueModeQueue, 0, nil, nil)
	controller.Speak("three", utterance.QueueModeQueue, 0, nil, nil)

	requests := waitForRequests(t, engineB, 1)
	if requests[0].Text != "three" {
		t.Fatalf("expected %q on engine B, got %q", "three", requests[0].Text)
	}
}

type panickingEngine struct{}

func (panickingEngine) Speak(Request) error    { panic("engine exploded") }
func (panickingEngine) Stop() error            { return nil }
func (panickingEngine) SetPitch(float64) error { return nil }
func (panickingEngine) SetRate(float64) error  { return nil }
func (panickingEngine) Shutdown() error        { return nil }
