// Package events defines the raw user-interface change notifications that
// feed the coalescer.
//
// Event kinds are grouped by namespace:
//
//   - view.*: a single on-screen element changed (clicked, focused,
//     selected, text edited, scrolled).
//   - window.*: a window appeared or its content was rebuilt.
//   - notification.*: a status notification was posted.
//   - announcement: an application asked for text to be spoken.
//
// Events are plain values. Producers construct them with the New*
// constructors and hand them to the coalescer from any goroutine.
package events
