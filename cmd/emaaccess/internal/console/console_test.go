package console

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-access/core/speech"
	"github.com/koscakluka/ema-access/core/utterance"
)

type recordingListener struct {
	mu        sync.Mutex
	engine    speech.Engine
	completed []string
}

func (l *recordingListener) OnInitialized(_ string, engine speech.Engine, _ error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engine = engine
}

func (l *recordingListener) OnUtteranceCompleted(id string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ok {
		l.completed = append(l.completed, id)
	}
}

func (l *recordingListener) OnEngineCrashed(string, error) {}

func (l *recordingListener) Engine() speech.Engine {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine
}

func (l *recordingListener) Completed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.completed...)
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
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

func TestEngineWrapsAndCompletes(t *testing.T) {
	out := &safeBuffer{}
	listener := &recordingListener{}
	binding := NewBinding(NewWriter(out, WithWidth(30)))

	if err := binding.Initialize(t.Context(), "tts", listener); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	waitForCondition(t, time.Second, "engine initialized", func() bool { return listener.Engine() != nil })

	text := "the quick brown fox jumps over the lazy dog twice"
	if err := listener.Engine().Speak(speech.Request{UtteranceID: "u1", Text: text}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	waitForCondition(t, time.Second, "completion", func() bool { return len(listener.Completed()) == 1 })

	printed := out.String()
	if lines := strings.Count(strings.TrimSpace(printed), "\n") + 1; lines < 2 {
		t.Fatalf("expected text to wrap, got %q", printed)
	}
	for _, word := range strings.Fields(text) {
		if !strings.Contains(printed, word) {
			t.Fatalf("expected output to contain %q, got %q", word, printed)
		}
	}
	if !strings.Contains(printed, "tts:") {
		t.Fatalf("expected engine label, got %q", printed)
	}
}

func TestEnginePrintsParamsAndControls(t *testing.T) {
	out := &safeBuffer{}
	listener := &recordingListener{}
	binding := NewBinding(NewWriter(out))
	_ = binding.Initialize(t.Context(), "tts", listener)
	waitForCondition(t, time.Second, "engine initialized", func() bool { return listener.Engine() != nil })

	engine := listener.Engine()
	_ = engine.Speak(speech.Request{UtteranceID: "u1", Text: "Send", Params: utterance.Params{utterance.ParamPitch: 1.5}})
	_ = engine.Stop()

	printed := out.String()
	if !strings.Contains(printed, "pitch=1.5") {
		t.Fatalf("expected params in output, got %q", printed)
	}
	if !strings.Contains(printed, "tts: stop") {
		t.Fatalf("expected stop in output, got %q", printed)
	}
}

func TestEmptyRequestCompletesSilently(t *testing.T) {
	out := &safeBuffer{}
	listener := &recordingListener{}
	_ = NewBinding(NewWriter(out)).Initialize(t.Context(), "tts", listener)
	waitForCondition(t, time.Second, "engine initialized", func() bool { return listener.Engine() != nil })

	_ = listener.Engine().Speak(speech.Request{UtteranceID: "u1"})
	waitForCondition(t, time.Second, "completion", func() bool { return len(listener.Completed()) == 1 })
	if printed := out.String(); printed != "" {
		t.Fatalf("expected no output, got %q", printed)
	}
}

func TestPlayerPrintsEarcons(t *testing.T) {
	out := &safeBuffer{}
	player := NewPlayer(NewWriter(out))

	player.PlayEarcon("boundary", 1, 1)
	player.PlayHaptic("long_press")

	printed := out.String()
	if !strings.Contains(printed, "boundary") || !strings.Contains(printed, "long_press") {
		t.Fatalf("expected earcon and haptic, got %q", printed)
	}
}
