package events

const (
	// KindWindowStateChanged identifies a new window or dialog appearing.
	KindWindowStateChanged Kind = "window.state_changed"
	// KindWindowContentChanged identifies a subtree of the current window
	// being rebuilt. Producers tend to emit these in bursts.
	KindWindowContentChanged Kind = "window.content_changed"
	// KindNotificationStateChanged identifies a posted status notification.
	KindNotificationStateChanged Kind = "notification.state_changed"
	// KindAnnouncement identifies an application request to speak text.
	KindAnnouncement Kind = "announcement"
)

// WindowStateChanged marks a window transition.
type WindowStateChanged struct {
	Base
	Title     string
	ClassName string
}

func NewWindowStateChanged(title, className string, opts ...RebaseOption) WindowStateChanged {
	return WindowStateChanged{Base: NewBase(KindWindowStateChanged, opts...), Title: title, ClassName: className}
}

// WindowContentChanged marks a content rebuild below Source.
type WindowContentChanged struct {
	Base
	Source string
}

func NewWindowContentChanged(source string, opts ...RebaseOption) WindowContentChanged {
	return WindowContentChanged{Base: NewBase(KindWindowContentChanged, opts...), Source: source}
}

// Notification carries the text of a posted notification.
type Notification struct {
	Base
	Ticker string
	Text   []string
}

func NewNotification(ticker string, text []string, opts ...RebaseOption) Notification {
	return Notification{Base: NewBase(KindNotificationStateChanged, opts...), Ticker: ticker, Text: text}
}

// Announcement carries text an application wants spoken verbatim.
type Announcement struct {
	Base
	Text string
}

func NewAnnouncement(text string, opts ...RebaseOption) Announcement {
	return Announcement{Base: NewBase(KindAnnouncement, opts...), Text: text}
}

// IsNotification reports whether e is a notification. Notifications survive
// queue pruning.
func IsNotification(e Event) bool {
	return e != nil && e.Kind() == KindNotificationStateChanged
}
