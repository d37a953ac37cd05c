package speech

import (
	"slices"
	"testing"

	"github.com/koscakluka/ema-access/core/utterance"
)

func TestCompletionActionsTakeInRegistrationOrder(t *testing.T) {
	var actions completionActions
	var fired []string
	record := func(name string) utterance.CompletionFunc {
		return func(utterance.Status) { fired = append(fired, name) }
	}

	actions.add(5, record("five"))
	actions.add(2, record("two"))
	actions.add(9, record("nine"))
	actions.add(3, record("three"))

	runCompletionActions(actions.takeUpTo(4), utterance.StatusSpoken)
	if !slices.Equal(fired, []string{"two", "three"}) {
		t.Fatalf("expected actions up to 4 in registration order, got %v", fired)
	}
	if got := actions.len(); got != 2 {
		t.Fatalf("expected 2 pending actions, got %d", got)
	}

	runCompletionActions(actions.takeUpTo(allUtterances), utterance.StatusInterrupted)
	if !slices.Equal(fired, []string{"two", "three", "five", "nine"}) {
		t.Fatalf("expected remaining actions in registration order, got %v", fired)
	}
	if got := actions.len(); got != 0 {
		t.Fatalf("expected no pending actions, got %d", got)
	}
}

func TestPanickingCompletionActionDoesNotStopOthers(t *testing.T) {
	var actions completionActions
	var ran bool
	actions.add(1, func(utterance.Status) { panic("boom") })
	actions.add(1, func(utterance.Status) { ran = true })

	runCompletionActions(actions.takeUpTo(1), utterance.StatusSpoken)
	if !ran {
		t.Fatalf("expected second action to run")
	}
}
