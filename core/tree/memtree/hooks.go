package memtree

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SetFocusHook registers fn to run after a node takes the reading cursor.
// It runs without the tree lock held.
func (t *Tree) SetFocusHook(fn func(node *Node)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFocus = fn
}

// SetTraverseHook registers fn to run after granularity or element movement
// covers some text.
func (t *Tree) SetTraverseHook(fn func(node *Node, text string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTraverse = fn
}

// Parse builds a tree from a YAML description of the root node.
func Parse(data []byte) (*Tree, error) {
	var root Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	return New(&root)
}

func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tree: %w", err)
	}
	return Parse(data)
}
