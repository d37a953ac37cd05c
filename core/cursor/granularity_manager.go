package cursor

// Result of navigating within a locked node.
type Result int

const (
	// ResultNotSupported means there is no lock or the granularity cannot
	// be navigated.
	ResultNotSupported Result = iota - 1
	// ResultHitEdge means every unit in the requested direction is used up.
	ResultHitEdge
	ResultSuccess
)

func (r Result) String() string {
	switch r {
	case ResultNotSupported:
		return "not_supported"
	case ResultHitEdge:
		return "hit_edge"
	case ResultSuccess:
		return "success"
	}
	return "unknown"
}

// granularityManager holds the granularity lock: the node reading is
// restricted to, the sub-units extracted from it and a cursor into them.
type granularityManager struct {
	tree Tree

	lockedNode       Node
	navigableNodes   []Node
	supported        []Granularity
	currentNodeIndex int
	requestedIndex   int
	selectionMode    bool
}

func newGranularityManager(tree Tree) *granularityManager {
	return &granularityManager{tree: tree}
}

// isLockedTo reports whether navigation is restricted to node. A Default
// request never counts as a lock.
func (m *granularityManager) isLockedTo(node Node) bool {
	if m.requestedIndex == 0 {
		return false
	}
	return m.lockedNode != nil && sameNode(m.lockedNode, node)
}

func (m *granularityManager) requested() Granularity {
	if m.requestedIndex < 0 || m.requestedIndex >= len(m.supported) {
		return GranularityDefault
	}
	return m.supported[m.requestedIndex]
}

// setGranularityAt locks to node and requests g. It reports false when node
// does not support g, leaving the request at Default.
func (m *granularityManager) setGranularityAt(node Node, g Granularity) bool {
	m.setLockedNode(node)

	index := -1
	for i, candidate := range m.supported {
		if candidate == g {
			index = i
			break
		}
	}
	if index < 0 {
		m.requestedIndex = 0
		return false
	}

	m.requestedIndex = index
	m.navigateCurrent()
	return true
}

// adjustGranularityAt moves the request by step through the supported list,
// wrapping at both ends.
func (m *granularityManager) adjustGranularityAt(node Node, step int) bool {
	m.setLockedNode(node)

	count := len(m.supported)
	if count == 0 {
		return false
	}

	current := m.requestedIndex
	m.requestedIndex = ((m.requestedIndex+step)%count + count) % count
	return m.requestedIndex != current
}

func (m *granularityManager) clear() {
	m.currentNodeIndex = 0
	m.requestedIndex = 0
	m.supported = nil
	m.navigableNodes = nil
	m.lockedNode = nil
	m.selectionMode = false
}

// onNodeFocused drops the lock when the reading cursor lands on another node
// of the locked node's window.
func (m *granularityManager) onNodeFocused(node Node) {
	if m.lockedNode == nil || node == nil {
		return
	}

	if !sameNode(m.lockedNode, node) && m.lockedNode.WindowID() == node.WindowID() {
		m.clear()
	}
}

// navigate moves one unit of the requested granularity through the locked
// node's sub-units. A sub-unit that cannot move any further hands over to its
// neighbour in the travel direction.
func (m *granularityManager) navigate(direction Direction) Result {
	if m.lockedNode == nil {
		return ResultNotSupported
	}

	requested := m.requested()
	if requested == GranularityDefault {
		return ResultNotSupported
	}

	if requested.IsWeb() {
		return m.navigateWeb(direction, requested)
	}

	count := len(m.navigableNodes)
	var action Action
	var increment int
	switch direction {
	case DirectionForward:
		action = ActionNextAtGranularity
		increment = 1
		if m.currentNodeIndex < 0 {
			m.currentNodeIndex++
		}
	case DirectionBackward:
		action = ActionPreviousAtGranularity
		increment = -1
		if m.currentNodeIndex >= count {
			m.currentNodeIndex--
		}
	default:
		return ResultNotSupported
	}

	args := ActionArgs{Granularity: requested, ExtendSelection: m.selectionMode}
	for m.currentNodeIndex >= 0 && m.currentNodeIndex < count {
		if m.navigableNodes[m.currentNodeIndex].PerformAction(action, args) {
			return ResultSuccess
		}

		logger.Debug("failed to move with granularity, trying next node",
			"granularity", requested.String(),
			"node", m.navigableNodes[m.currentNodeIndex].ID())
		m.currentNodeIndex += increment
	}

	return ResultHitEdge
}

// navigateCurrent lands on the unit under the cursor by stepping forward and
// back again.
func (m *granularityManager) navigateCurrent() {
	m.navigate(DirectionForward)
	m.navigate(DirectionBackward)
}

func (m *granularityManager) navigateWeb(direction Direction, g Granularity) Result {
	navigator, ok := m.lockedNode.(ElementNavigator)
	if !ok {
		return ResultNotSupported
	}

	if !navigator.NavigateElement(direction, g.htmlElement()) {
		return ResultHitEdge
	}
	return ResultSuccess
}

// setLockedNode rebuilds the lock when node differs from the locked node and
// keeps it untouched otherwise.
func (m *granularityManager) setLockedNode(node Node) {
	if m.lockedNode != nil && !sameNode(m.lockedNode, node) {
		m.clear()
	}

	if m.lockedNode != nil || node == nil {
		return
	}

	m.lockedNode = node
	if m.shouldClearSelection(node) {
		node.PerformAction(ActionSetSelection, ActionArgs{})
	}

	var navigable []Node
	mask := m.extractNavigableNodes(node, &navigable)
	m.navigableNodes = navigable
	m.supported = FromMask(mask, m.tree.HasWebContent(node))
}

// shouldClearSelection keeps the caret of editable nodes, which own a stable
// cursor position.
func (m *granularityManager) shouldClearSelection(node Node) bool {
	editable, ok := node.(interface{ IsEditable() bool })
	return !ok || !editable.IsEditable()
}

// extractNavigableNodes appends root and its non-focusable descendants to
// nodes in depth-first order and returns the union of their granularity
// masks. A node with a content description is a leaf.
func (m *granularityManager) extractNavigableNodes(root Node, nodes *[]Node) int {
	if root == nil {
		return 0
	}

	if nodes != nil {
		*nodes = append(*nodes, root)
	}

	supported := root.MovementGranularities()
	if root.ContentDescription() != "" {
		return supported
	}

	for _, child := range m.tree.Children(root) {
		if child == nil {
			continue
		}

		child.PerformAction(ActionSetSelection, ActionArgs{})

		// Focusable children are reached by ordinary traversal instead.
		if !m.tree.ShouldFocus(child) {
			supported |= m.extractNavigableNodes(child, nodes)
		}
	}

	return supported
}

// SupportedGranularities lists the granularities available when reading
// root.
func SupportedGranularities(tree Tree, root Node) []Granularity {
	if tree == nil || root == nil {
		return []Granularity{GranularityDefault}
	}
	m := newGranularityManager(tree)
	return FromMask(m.extractNavigableNodes(root, nil), tree.HasWebContent(root))
}
