package keycombo

type Action int

const (
	ActionDown Action = iota
	ActionUp
	// ActionMultiple reports a burst of repeated key presses.
	ActionMultiple
)

// Event is one key transition. Modifiers holds the modifier state at the
// time of the event, including the key itself when it is a modifier.
type Event struct {
	Action    Action
	Key       Key
	Modifiers Modifier
}

func KeyDown(key Key, modifiers Modifier) Event {
	return Event{Action: ActionDown, Key: key, Modifiers: modifiers}
}

func KeyUp(key Key, modifiers Modifier) Event {
	return Event{Action: ActionUp, Key: key, Modifiers: modifiers}
}
