package speech

import (
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-access/core/utterance"
)

// ActionID identifies a registered completion action for removal.
type ActionID string

// allUtterances is larger than any real index, so firing up to it drains
// every pending action.
const allUtterances int64 = math.MaxInt64

type completionAction struct {
	id    ActionID
	index int64
	run   utterance.CompletionFunc
}

// completionActions keeps actions in registration order. Taking an action
// removes it, which is what makes every action fire at most once.
type completionActions struct {
	mu      sync.Mutex
	actions []completionAction
}

func (a *completionActions) add(index int64, run utterance.CompletionFunc) ActionID {
	id := ActionID(uuid.NewString())

	a.mu.Lock()
	a.actions = append(a.actions, completionAction{id: id, index: index, run: run})
	a.mu.Unlock()

	return id
}

func (a *completionActions) remove(id ActionID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, action := range a.actions {
		if action.id == id {
			a.actions = append(a.actions[:i], a.actions[i+1:]...)
			return true
		}
	}
	return false
}

// takeUpTo removes and returns every action whose threshold is at most
// index.
func (a *completionActions) takeUpTo(index int64) []completionAction {
	a.mu.Lock()
	defer a.mu.Unlock()

	var taken []completionAction
	kept := a.actions[:0]
	for _, action := range a.actions {
		if action.index <= index {
			taken = append(taken, action)
		} else {
			kept = append(kept, action)
		}
	}
	clear(a.actions[len(kept):])
	a.actions = kept
	return taken
}

func (a *completionActions) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.actions)
}

func runCompletionActions(actions []completionAction, status utterance.Status) {
	for _, action := range actions {
		runCompletion(action.run, status)
	}
}

func runCompletion(run utterance.CompletionFunc, status utterance.Status) {
	if run == nil {
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("completion action panicked", "status", status.String(), "panic", recovered)
		}
	}()
	run(status)
}
