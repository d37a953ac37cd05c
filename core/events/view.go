package events

const (
	// KindViewClicked identifies a click on an element.
	KindViewClicked Kind = "view.clicked"
	// KindViewLongClicked identifies a long press on an element.
	KindViewLongClicked Kind = "view.long_clicked"
	// KindViewFocused identifies input focus moving to an element.
	KindViewFocused Kind = "view.focused"
	// KindViewSelected identifies a selection change inside a list or picker.
	KindViewSelected Kind = "view.selected"
	// KindViewScrolled identifies a scroll of a container.
	KindViewScrolled Kind = "view.scrolled"
	// KindViewHoverEnter identifies touch exploration entering an element.
	KindViewHoverEnter Kind = "view.hover_enter"
	// KindViewAccessibilityFocused identifies the reading cursor landing on an element.
	KindViewAccessibilityFocused Kind = "view.accessibility_focused"
	// KindViewTextChanged identifies an edit of an element's text.
	KindViewTextChanged Kind = "view.text_changed"
	// KindViewTextSelectionChanged identifies a caret or selection move.
	KindViewTextSelectionChanged Kind = "view.text_selection_changed"
)

// ViewEvent describes a change to a single element.
type ViewEvent struct {
	Base
	// Source is the identifier of the tree node the event refers to.
	Source             string
	ClassName          string
	Text               []string
	ContentDescription string

	ItemCount        int
	CurrentItemIndex int
	FromIndex        int
	ToIndex          int

	Checked  bool
	Enabled  bool
	Password bool
}

// NewViewEvent creates a view event of the given kind.
func NewViewEvent(kind Kind, source, className string, text []string, opts ...RebaseOption) ViewEvent {
	return ViewEvent{
		Base:      NewBase(kind, opts...),
		Source:    source,
		ClassName: className,
		Text:      text,
		Enabled:   true,
	}
}

// TextChanged describes an edit of an editable element.
type TextChanged struct {
	Base
	Source       string
	ClassName    string
	BeforeText   string
	Text         string
	FromIndex    int
	AddedCount   int
	RemovedCount int
	Password     bool
}

// NewTextChanged creates a text changed event.
func NewTextChanged(source, beforeText, text string, fromIndex, addedCount, removedCount int, opts ...RebaseOption) TextChanged {
	return TextChanged{
		Base:         NewBase(KindViewTextChanged, opts...),
		Source:       source,
		BeforeText:   beforeText,
		Text:         text,
		FromIndex:    fromIndex,
		AddedCount:   addedCount,
		RemovedCount: removedCount,
	}
}

// Added returns the inserted text, or "" when nothing was added or the
// indices are out of range.
func (e TextChanged) Added() string {
	runes := []rune(e.Text)
	if e.AddedCount <= 0 || e.FromIndex < 0 || e.FromIndex+e.AddedCount > len(runes) {
		return ""
	}
	return string(runes[e.FromIndex : e.FromIndex+e.AddedCount])
}

// Removed returns the deleted text, or "" when nothing was removed or the
// indices are out of range.
func (e TextChanged) Removed() string {
	runes := []rune(e.BeforeText)
	if e.RemovedCount <= 0 || e.FromIndex < 0 || e.FromIndex+e.RemovedCount > len(runes) {
		return ""
	}
	return string(runes[e.FromIndex : e.FromIndex+e.RemovedCount])
}
