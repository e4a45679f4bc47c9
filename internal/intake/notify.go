package intake

import (
	"net/url"
	"sync"

	"github.com/wolfman30/mealprep-intake/pkg/logging"
)

// NotificationKind classifies user facing notices.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifyError   NotificationKind = "error"
	NotifySuccess NotificationKind = "success"
)

// Notifier delivers fire-and-forget user notices (toasts).
type Notifier interface {
	Notify(kind NotificationKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind NotificationKind, message string)

func (f NotifierFunc) Notify(kind NotificationKind, message string) { f(kind, message) }

// Navigator moves the client to another page.
type Navigator interface {
	NavigateTo(path string, query url.Values)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string, query url.Values)

func (f NavigatorFunc) NavigateTo(path string, query url.Values) { f(path, query) }

// Notification is a recorded notice.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	Message string           `json:"message"`
}

// NotificationQueue buffers notices until the presentation layer drains them.
type NotificationQueue struct {
	mu    sync.Mutex
	items []Notification
}

// Notify implements Notifier.
func (q *NotificationQueue) Notify(kind NotificationKind, message string) {
	q.mu.Lock()
	q.items = append(q.items, Notification{Kind: kind, Message: message})
	q.mu.Unlock()
}

// Drain returns and clears the queued notices.
func (q *NotificationQueue) Drain() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// LogNotifier writes notices to the structured log.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(kind NotificationKind, message string) {
	n.logger.Info("wizard notification", "kind", string(kind), "message", message)
}

type discardNotifier struct{}

func (discardNotifier) Notify(NotificationKind, string) {}

type discardNavigator struct{}

func (discardNavigator) NavigateTo(string, url.Values) {}
