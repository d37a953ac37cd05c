// Package cursor keeps a logical reading position over an externally owned,
// mutable tree and moves it by node, by scroll page or by text granularity.
package cursor

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// Listener observes cursor changes. It is called with the controller's lock
// held and must not call back into the controller.
type Listener interface {
	OnGranularityChanged(granularity Granularity, fromUser bool)
	OnActionPerformed(action Action)
}

// Controller is the navigation API. Every method is safe for concurrent use
// and reports dead ends as ordinary false or Result values.
type Controller struct {
	mu sync.Mutex

	tree        Tree
	granularity *granularityManager
	listener    Listener
	autoScroll  bool

	// reachedEdge is set by a failed move and remembers its direction so a
	// second failure the same way wraps around.
	reachedEdge    bool
	reachedEdgeDir Direction
}

type ControllerOption func(*Controller)

func WithListener(listener Listener) ControllerOption {
	return func(c *Controller) {
		c.listener = listener
	}
}

// WithAutoScroll enables scrolling a container when the cursor sits on its
// first or last child. It is on by default.
func WithAutoScroll(enabled bool) ControllerOption {
	return func(c *Controller) {
		c.autoScroll = enabled
	}
}

func NewController(tree Tree, opts ...ControllerOption) *Controller {
	c := &Controller{
		tree:        tree,
		granularity: newGranularityManager(tree),
		autoScroll:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Next moves the cursor forward. See Previous.
func (c *Controller) Next(shouldWrap, shouldScroll bool) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigateWithGranularity(DirectionForward, shouldWrap, shouldScroll)
}

// Previous moves the cursor backward: within the granularity lock when there
// is one, otherwise by web element, by auto-scroll at a container edge, or to
// the previous focusable node. The second consecutive failure in the same
// direction wraps to the other end when shouldWrap is set.
func (c *Controller) Previous(shouldWrap, shouldScroll bool) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.navigateWithGranularity(DirectionBackward, shouldWrap, shouldScroll)
}

// JumpToTop moves the cursor to the first focusable node.
func (c *Controller) JumpToTop() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearCursor()
	c.reachedEdge = true
	c.reachedEdgeDir = DirectionForward
	return c.navigateWithGranularity(DirectionForward, true, false)
}

// JumpToBottom moves the cursor to the last focusable node.
func (c *Controller) JumpToBottom() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearCursor()
	c.reachedEdge = true
	c.reachedEdgeDir = DirectionBackward
	return c.navigateWithGranularity(DirectionBackward, true, false)
}

// More scrolls the best scrollable node forward.
func (c *Controller) More() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptScrollAction(ActionScrollForward)
}

// Less scrolls the best scrollable node backward.
func (c *Controller) Less() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptScrollAction(ActionScrollBackward)
}

func (c *Controller) ClickCurrent() bool {
	return c.performAction(ActionClick)
}

func (c *Controller) LongClickCurrent() bool {
	return c.performAction(ActionLongClick)
}

// SetGranularity locks reading to the cursor node at g. Calling it again with
// the same node and granularity leaves the lock as it was.
func (c *Controller) SetGranularity(g Granularity, fromUser bool) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setGranularity(g, fromUser)
}

// AdjustGranularity steps the requested granularity up (step > 0) or down
// through the cursor node's supported list, wrapping around.
func (c *Controller) AdjustGranularity(step int) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.getCursor()
	if current == nil {
		return false
	}

	adjusted := c.granularity.adjustGranularityAt(current, step)
	if adjusted && c.listener != nil {
		c.listener.OnGranularityChanged(c.granularity.requested(), true)
	}
	return adjusted
}

func (c *Controller) NextGranularity() bool {
	return c.AdjustGranularity(1)
}

func (c *Controller) PreviousGranularity() bool {
	return c.AdjustGranularity(-1)
}

// NavigateWithin moves one unit inside the locked node without falling back
// to node traversal.
func (c *Controller) NavigateWithin(direction Direction) Result {
	if c == nil {
		return ResultNotSupported
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.granularity.isLockedTo(c.getCursor()) {
		return ResultNotSupported
	}
	return c.granularity.navigate(direction)
}

// SetSelectionModeActive toggles selection extension during granularity
// moves. Activating it without a lock locks to characters first.
func (c *Controller) SetSelectionModeActive(active bool) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if active && !c.granularity.isLockedTo(c.getCursor()) {
		c.setGranularity(GranularityCharacter, false)
	}
	c.granularity.selectionMode = active
}

func (c *Controller) IsSelectionModeActive() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.granularity.selectionMode
}

// GranularityAt reports the granularity reading is locked to at node.
func (c *Controller) GranularityAt(node Node) Granularity {
	if c == nil {
		return GranularityDefault
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.granularity.isLockedTo(node) {
		return c.granularity.requested()
	}
	return GranularityDefault
}

// Cursor returns the node holding the reading cursor, or the root when
// nothing holds it.
func (c *Controller) Cursor() Node {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getCursor()
}

// SetCursor asks node to take the reading cursor.
func (c *Controller) SetCursor(node Node) bool {
	if c == nil || node == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setCursor(node)
}

// Refocus clears and restores focus on the cursor node so it is announced
// again.
func (c *Controller) Refocus() bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	node := c.tree.Focused()
	if node == nil {
		return false
	}
	node.PerformAction(ActionClearAccessibilityFocus, ActionArgs{})
	return c.setCursor(node)
}

// OnNodeFocused tells the controller the reading cursor landed on node by
// some other means (touch exploration, an application request).
func (c *Controller) OnNodeFocused(node Node) {
	if c == nil || node == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.granularity.onNodeFocused(node)
	c.reachedEdge = false
}

// Clear drops the granularity lock and edge state.
func (c *Controller) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.granularity.clear()
	c.reachedEdge = false
}

func (c *Controller) setGranularity(g Granularity, fromUser bool) bool {
	current := c.getCursor()
	if current == nil {
		return false
	}

	if !c.granularity.setGranularityAt(current, g) {
		return false
	}

	if c.listener != nil {
		c.listener.OnGranularityChanged(g, fromUser)
	}

	// Land on the current character so it is announced.
	if g == GranularityCharacter {
		c.granularity.navigate(DirectionForward)
		c.granularity.navigate(DirectionBackward)
	}
	return true
}

func (c *Controller) navigateWithGranularity(direction Direction, shouldWrap, shouldScroll bool) bool {
	_, span := tracer.Start(context.Background(), "navigate")
	defer span.End()
	span.SetAttributes(attribute.String("direction", direction.String()))

	current := c.getCursor()
	if current == nil {
		span.AddEvent("no cursor")
		return false
	}

	if c.granularity.isLockedTo(current) {
		result := c.granularity.navigate(direction)
		span.SetAttributes(attribute.String("granularity.result", result.String()))
		return result == ResultSuccess
	}

	if c.tree.HasWebContent(current) && attemptHTMLNavigation(current, direction) {
		span.AddEvent("html navigation")
		return true
	}

	if shouldScroll && c.autoScroll && c.isEdgeItem(current, direction) &&
		c.attemptScrollAction(scrollAction(direction)) {
		span.AddEvent("auto scroll")
		return true
	}

	if target := c.navigateFrom(current, direction); target != nil && c.setCursor(target) {
		c.reachedEdge = false
		return true
	}

	if c.reachedEdge && c.reachedEdgeDir == direction && shouldWrap {
		c.reachedEdge = false
		span.AddEvent("wrap around")
		return c.navigateWrapAround(direction)
	}

	c.reachedEdge = true
	c.reachedEdgeDir = direction
	span.AddEvent("reached edge")
	return false
}

func (c *Controller) navigateWrapAround(direction Direction) bool {
	root := c.tree.Root()
	if root == nil {
		return false
	}

	var wrapNode Node
	switch direction {
	case DirectionForward:
		wrapNode = c.navigateSelfOrFrom(root, direction)
	case DirectionBackward:
		wrapNode = c.navigateSelfOrFrom(c.lastDescendant(root), direction)
	}

	if wrapNode == nil {
		logger.Error("failed to wrap navigation", "direction", direction.String())
		return false
	}
	return c.setCursor(wrapNode)
}

func (c *Controller) lastDescendant(node Node) Node {
	for {
		children := c.tree.Children(node)
		if len(children) == 0 {
			return node
		}
		node = children[len(children)-1]
	}
}

func (c *Controller) navigateSelfOrFrom(node Node, direction Direction) Node {
	if node == nil {
		return nil
	}
	if c.tree.ShouldFocus(node) {
		return node
	}
	return c.navigateFrom(node, direction)
}

// navigateFrom returns the next focusable node after node. It gives up when
// the search revisits a node it already rejected.
func (c *Controller) navigateFrom(node Node, direction Direction) Node {
	if node == nil {
		return nil
	}

	seen := make(map[string]struct{})
	next := c.tree.FocusSearch(node, direction)
	for next != nil && !c.tree.ShouldFocus(next) {
		key := nodeKey(next)
		if _, ok := seen[key]; ok {
			logger.Error("found duplicate during traversal", "node", next.ID())
			return nil
		}
		seen[key] = struct{}{}

		next = c.tree.FocusSearch(next, direction)
	}
	return next
}

// isEdgeItem reports whether node is the first or last focusable item inside
// a scrollable ancestor in the direction of travel.
func (c *Controller) isEdgeItem(node Node, direction Direction) bool {
	container := c.scrollableAncestor(node, false)
	if container == nil {
		return false
	}

	next := c.navigateFrom(node, direction)
	return next == nil || !c.isDescendant(next, container)
}

func (c *Controller) isDescendant(node, ancestor Node) bool {
	for current := c.tree.Parent(node); current != nil; current = c.tree.Parent(current) {
		if sameNode(current, ancestor) {
			return true
		}
	}
	return false
}

func (c *Controller) scrollableAncestor(node Node, includeSelf bool) Node {
	current := node
	if !includeSelf {
		current = c.tree.Parent(node)
	}
	for ; current != nil; current = c.tree.Parent(current) {
		if current.IsScrollable() {
			return current
		}
	}
	return nil
}

func (c *Controller) attemptScrollAction(action Action) bool {
	current := c.getCursor()
	if current == nil {
		return false
	}

	scrollable := c.bestScrollableNode(current)
	if scrollable == nil {
		return false
	}

	performed := scrollable.PerformAction(action, ActionArgs{})
	if performed && c.listener != nil {
		c.listener.OnActionPerformed(action)
	}
	return performed
}

// bestScrollableNode prefers the cursor or its nearest scrollable ancestor
// and falls back to the first scrollable node breadth-first from the root.
func (c *Controller) bestScrollableNode(cursor Node) Node {
	if node := c.scrollableAncestor(cursor, true); node != nil {
		return node
	}

	root := c.tree.Root()
	if root == nil {
		return nil
	}

	queue := []Node{root}
	seen := map[string]struct{}{nodeKey(root): {}}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.IsScrollable() {
			return node
		}
		for _, child := range c.tree.Children(node) {
			if child == nil {
				continue
			}
			if _, ok := seen[nodeKey(child)]; ok {
				continue
			}
			seen[nodeKey(child)] = struct{}{}
			queue = append(queue, child)
		}
	}
	return nil
}

func (c *Controller) performAction(action Action) bool {
	if c == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.getCursor()
	if current == nil {
		return false
	}

	performed := current.PerformAction(action, ActionArgs{})
	if performed && c.listener != nil {
		c.listener.OnActionPerformed(action)
	}
	return performed
}

func (c *Controller) getCursor() Node {
	if c.tree == nil {
		return nil
	}
	if focused := c.tree.Focused(); focused != nil {
		return focused
	}
	return c.tree.Root()
}

func (c *Controller) setCursor(node Node) bool {
	return node.PerformAction(ActionAccessibilityFocus, ActionArgs{})
}

func (c *Controller) clearCursor() {
	if c.tree == nil {
		return
	}
	if focused := c.tree.Focused(); focused != nil {
		focused.PerformAction(ActionClearAccessibilityFocus, ActionArgs{})
	}
}

func attemptHTMLNavigation(node Node, direction Direction) bool {
	navigator, ok := node.(ElementNavigator)
	if !ok {
		return false
	}
	return navigator.NavigateElement(direction, "")
}

func scrollAction(direction Direction) Action {
	if direction == DirectionBackward {
		return ActionScrollBackward
	}
	return ActionScrollForward
}

func nodeKey(node Node) string {
	return node.ID()
}
