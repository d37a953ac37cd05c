package memtree

import (
	"strings"
	"unicode"

	"github.com/koscakluka/ema-access/core/cursor"
)

// Element is a piece of web content inside a node.
type Element struct {
	Type string `yaml:"type"`
	Text string `yaml:"text"`
}

// Node is one element of the in-memory tree. Exported fields describe the
// node and may be set before the node is attached; the remaining state is
// driven by PerformAction.
type Node struct {
	NodeID        string    `yaml:"id"`
	Window        int       `yaml:"window"`
	ClassName     string    `yaml:"class"`
	Text          string    `yaml:"text"`
	Description   string    `yaml:"description"`
	Focusable     bool      `yaml:"focusable"`
	Clickable     bool      `yaml:"clickable"`
	Editable      bool      `yaml:"editable"`
	Scrollable    bool      `yaml:"scrollable"`
	MaxScroll     int       `yaml:"max_scroll"`
	Web           bool      `yaml:"web"`
	Elements      []Element `yaml:"elements"`
	Granularities []string  `yaml:"granularities"`
	ChildNodes    []*Node   `yaml:"children"`

	tree   *Tree
	parent *Node

	caret        int
	scroll       int
	elementIndex int
	lastRead     string
}

func (n *Node) ID() string {
	return n.NodeID
}

func (n *Node) WindowID() int {
	return n.Window
}

func (n *Node) ContentDescription() string {
	return n.Description
}

func (n *Node) IsScrollable() bool {
	return n.Scrollable
}

func (n *Node) IsEditable() bool {
	return n.Editable
}

// Label is what a screen reader would say for the node.
func (n *Node) Label() string {
	if n.Description != "" {
		return n.Description
	}
	return n.Text
}

// Caret is the rune offset granularity movement has reached.
func (n *Node) Caret() int {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.caret
}

func (n *Node) ScrollPosition() int {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.scroll
}

// LastRead is the text covered by the most recent granularity or element
// movement.
func (n *Node) LastRead() string {
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	return n.lastRead
}

// MovementGranularities defaults to character, word, line and paragraph for
// nodes with text.
func (n *Node) MovementGranularities() int {
	names := n.Granularities
	if names == nil && n.Text != "" {
		names = []string{"character", "word", "line", "paragraph"}
	}

	mask := 0
	for _, name := range names {
		if g, ok := cursor.ParseGranularity(name); ok {
			mask |= g.Mask()
		}
	}
	return mask
}

func (n *Node) PerformAction(action cursor.Action, args cursor.ActionArgs) bool {
	tree := n.tree
	tree.mu.Lock()

	performed := false
	var focusHook func(*Node)
	var traverseHook func(*Node, string)

	switch action {
	case cursor.ActionAccessibilityFocus:
		if tree.byID[n.NodeID] == n {
			tree.focused = n
			performed = true
			focusHook = tree.onFocus
		}
	case cursor.ActionClearAccessibilityFocus:
		if tree.focused == n {
			tree.focused = nil
			performed = true
		}
	case cursor.ActionSetSelection:
		n.caret = 0
		performed = true
	case cursor.ActionNextAtGranularity, cursor.ActionPreviousAtGranularity:
		performed = n.moveCaret(action == cursor.ActionNextAtGranularity, args.Granularity)
		if performed {
			traverseHook = tree.onTraverse
		}
	case cursor.ActionScrollForward:
		if n.Scrollable && n.scroll < n.MaxScroll {
			n.scroll++
			performed = true
		}
	case cursor.ActionScrollBackward:
		if n.Scrollable && n.scroll > 0 {
			n.scroll--
			performed = true
		}
	case cursor.ActionClick, cursor.ActionLongClick:
		performed = n.Clickable
	}

	if performed {
		tree.record(n, action, args)
	}
	read := n.lastRead
	tree.mu.Unlock()

	if focusHook != nil {
		focusHook(n)
	}
	if traverseHook != nil {
		traverseHook(n, read)
	}
	return performed
}

// NavigateElement moves between web elements of the given type.
func (n *Node) NavigateElement(direction cursor.Direction, element string) bool {
	tree := n.tree
	tree.mu.Lock()

	if !n.Web || len(n.Elements) == 0 {
		tree.mu.Unlock()
		return false
	}

	step := 1
	index := n.elementIndex
	if direction == cursor.DirectionBackward {
		step = -1
		index -= 2
	}

	found := false
	for ; index >= 0 && index < len(n.Elements); index += step {
		if element == "" || strings.EqualFold(n.Elements[index].Type, element) {
			found = true
			break
		}
	}
	if !found {
		tree.mu.Unlock()
		return false
	}

	// elementIndex points just past the element last read.
	n.elementIndex = index + 1
	n.lastRead = n.Elements[index].Text
	hook := tree.onTraverse
	read := n.lastRead
	tree.mu.Unlock()

	if hook != nil {
		hook(n, read)
	}
	return true
}

func (n *Node) moveCaret(forward bool, granularity cursor.Granularity) bool {
	spans := segment(n.Text, granularity)
	if forward {
		for _, span := range spans {
			if span.end > n.caret {
				n.caret = span.end
				n.lastRead = string([]rune(n.Text)[span.start:span.end])
				return true
			}
		}
		return false
	}

	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].start < n.caret {
			n.caret = spans[i].start
			n.lastRead = string([]rune(n.Text)[spans[i].start:spans[i].end])
			return true
		}
	}
	return false
}

type span struct {
	start int
	end   int
}

// segment splits text into the units of granularity as rune offsets.
func segment(text string, granularity cursor.Granularity) []span {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	switch granularity {
	case cursor.GranularityCharacter:
		spans := make([]span, len(runes))
		for i := range runes {
			spans[i] = span{start: i, end: i + 1}
		}
		return spans
	case cursor.GranularityWord:
		return runsOf(runes, func(r rune) bool { return !unicode.IsSpace(r) })
	case cursor.GranularityLine:
		return runsOf(runes, func(r rune) bool { return r != '\n' })
	case cursor.GranularityParagraph:
		return paragraphs(runes)
	case cursor.GranularityPage:
		return []span{{start: 0, end: len(runes)}}
	}
	return nil
}

func runsOf(runes []rune, inside func(rune) bool) []span {
	var spans []span
	start := -1
	for i, r := range runes {
		switch {
		case inside(r) && start < 0:
			start = i
		case !inside(r) && start >= 0:
			spans = append(spans, span{start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		spans = append(spans, span{start: start, end: len(runes)})
	}
	return spans
}

func paragraphs(runes []rune) []span {
	var spans []span
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			if i > start {
				spans = append(spans, span{start: start, end: i})
			}
			for i < len(runes) && runes[i] == '\n' {
				i++
			}
			start = i
		}
	}
	if start < len(runes) {
		spans = append(spans, span{start: start, end: len(runes)})
	}
	return spans
}
