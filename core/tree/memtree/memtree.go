// Package memtree is an in-memory UI tree implementing the cursor package's
// tree contracts. It backs the replay command and the navigation tests.
package memtree

import (
	"fmt"
	"slices"
	"sync"

	"github.com/koscakluka/ema-access/core/cursor"
)

// Tree owns a set of nodes and the reading cursor position.
type Tree struct {
	mu sync.Mutex

	root    *Node
	byID    map[string]*Node
	order   []*Node
	focused *Node

	actions []PerformedAction

	onFocus    func(*Node)
	onTraverse func(*Node, string)
}

// PerformedAction records one successful PerformAction call.
type PerformedAction struct {
	NodeID string
	Action cursor.Action
	Args   cursor.ActionArgs
}

// New builds a tree from root. Node IDs must be unique.
func New(root *Node) (*Tree, error) {
	tree := &Tree{byID: map[string]*Node{}}
	if root == nil {
		return tree, nil
	}

	if err := tree.attach(root, nil); err != nil {
		return nil, err
	}
	tree.root = root
	tree.reindex()
	return tree, nil
}

func (t *Tree) attach(node, parent *Node) error {
	if node.NodeID == "" {
		return fmt.Errorf("node under %q has no id", parentID(parent))
	}
	if _, ok := t.byID[node.NodeID]; ok {
		return fmt.Errorf("duplicate node id %q", node.NodeID)
	}

	node.tree = t
	node.parent = parent
	t.byID[node.NodeID] = node
	for _, child := range node.ChildNodes {
		if err := t.attach(child, node); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) reindex() {
	t.order = t.order[:0]
	var walk func(node *Node)
	walk = func(node *Node) {
		t.order = append(t.order, node)
		for _, child := range node.ChildNodes {
			walk(child)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
}

// Node returns the node with id, or nil.
func (t *Tree) Node(id string) *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byID[id]
}

// Remove detaches the subtree rooted at id, clearing the cursor if it was
// inside it.
func (t *Tree) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.byID[id]
	if !ok || node == t.root {
		return false
	}

	parent := node.parent
	parent.ChildNodes = slices.DeleteFunc(parent.ChildNodes, func(child *Node) bool { return child == node })

	var forget func(n *Node)
	forget = func(n *Node) {
		if t.focused == n {
			t.focused = nil
		}
		delete(t.byID, n.NodeID)
		for _, child := range n.ChildNodes {
			forget(child)
		}
	}
	forget(node)
	t.reindex()
	return true
}

// Append attaches child as the last child of the node with parentID.
func (t *Tree) Append(parentID string, child *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.byID[parentID]
	if !ok {
		return fmt.Errorf("unknown parent %q", parentID)
	}
	if err := t.attach(child, parent); err != nil {
		return err
	}
	parent.ChildNodes = append(parent.ChildNodes, child)
	t.reindex()
	return nil
}

// Actions returns every successful action performed so far.
func (t *Tree) Actions() []PerformedAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.actions)
}

func (t *Tree) Root() cursor.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		return nil
	}
	return t.root
}

func (t *Tree) Focused() cursor.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.focused == nil {
		return nil
	}
	return t.focused
}

// FocusedNode is Focused with the concrete type.
func (t *Tree) FocusedNode() *Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.focused
}

// FocusSearch walks the tree in depth-first order.
func (t *Tree) FocusSearch(from cursor.Node, direction cursor.Direction) cursor.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	node := t.lookup(from)
	if node == nil {
		return nil
	}

	index := slices.Index(t.order, node)
	if direction == cursor.DirectionBackward {
		index--
	} else {
		index++
	}
	if index < 0 || index >= len(t.order) {
		return nil
	}
	return t.order[index]
}

func (t *Tree) ShouldFocus(node cursor.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(node)
	return n != nil && n.Focusable
}

func (t *Tree) Children(node cursor.Node) []cursor.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(node)
	if n == nil {
		return nil
	}
	children := make([]cursor.Node, 0, len(n.ChildNodes))
	for _, child := range n.ChildNodes {
		children = append(children, child)
	}
	return children
}

func (t *Tree) Parent(node cursor.Node) cursor.Node {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(node)
	if n == nil || n.parent == nil {
		return nil
	}
	return n.parent
}

func (t *Tree) HasWebContent(node cursor.Node) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.lookup(node)
	return n != nil && n.Web
}

func (t *Tree) lookup(node cursor.Node) *Node {
	if node == nil {
		return nil
	}
	return t.byID[node.ID()]
}

func (t *Tree) record(node *Node, action cursor.Action, args cursor.ActionArgs) {
	t.actions = append(t.actions, PerformedAction{NodeID: node.NodeID, Action: action, Args: args})
}

func parentID(parent *Node) string {
	if parent == nil {
		return ""
	}
	return parent.NodeID
}
