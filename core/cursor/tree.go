package cursor

// Direction of travel through the tree or through a node's content.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

func (d Direction) String() string {
	if d == DirectionBackward {
		return "backward"
	}
	return "forward"
}

// Action is a request a node can be asked to perform.
type Action int

const (
	ActionAccessibilityFocus Action = iota + 1
	ActionClearAccessibilityFocus
	ActionNextAtGranularity
	ActionPreviousAtGranularity
	ActionSetSelection
	ActionScrollForward
	ActionScrollBackward
	ActionClick
	ActionLongClick
)

func (a Action) String() string {
	switch a {
	case ActionAccessibilityFocus:
		return "accessibility_focus"
	case ActionClearAccessibilityFocus:
		return "clear_accessibility_focus"
	case ActionNextAtGranularity:
		return "next_at_granularity"
	case ActionPreviousAtGranularity:
		return "previous_at_granularity"
	case ActionSetSelection:
		return "set_selection"
	case ActionScrollForward:
		return "scroll_forward"
	case ActionScrollBackward:
		return "scroll_backward"
	case ActionClick:
		return "click"
	case ActionLongClick:
		return "long_click"
	default:
		return "unknown"
	}
}

// ActionArgs carries the optional arguments of granularity movement.
type ActionArgs struct {
	Granularity     Granularity
	ExtendSelection bool
}

// Node is a borrowed view of one element of an externally owned tree. Two
// nodes are the same element when their IDs are equal.
type Node interface {
	ID() string
	WindowID() int
	ContentDescription() string
	// MovementGranularities is a bitmask of Granularity.Mask values the
	// node can move through.
	MovementGranularities() int
	IsScrollable() bool
	PerformAction(action Action, args ActionArgs) bool
}

// ElementNavigator is implemented by nodes that host web content and can move
// between their own elements (sections, lists, controls). An empty element
// type means "any element".
type ElementNavigator interface {
	NavigateElement(direction Direction, element string) bool
}

// Tree answers structural questions about the current window. Methods return
// a nil Node when there is no answer.
type Tree interface {
	Root() Node
	// Focused returns the node holding the reading cursor.
	Focused() Node
	FocusSearch(from Node, direction Direction) Node
	ShouldFocus(node Node) bool
	Children(node Node) []Node
	Parent(node Node) Node
	HasWebContent(node Node) bool
}

func sameNode(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID() && a.WindowID() == b.WindowID()
}
