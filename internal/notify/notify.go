// Package notify abstracts operator notifications so the watcher and intake
// do not care whether messages go to a chat bot, a log or a test recorder.
package notify

import (
	"log"
	"sync"
)

// Notifier delivers human-readable event messages to the operator.
// Implementations must be safe for concurrent use; delivery is best-effort
// and must never block trading decisions.
type Notifier interface {
	Send(msg string)
	SendError(msg string)
	// SendCritical is for events needing immediate attention, such as an
	// emergency close or a failed emergency close.
	SendCritical(msg string)
}

// LogNotifier writes notifications to a standard logger. It is the default
// sink and the fallback when no chat transport is configured.
type LogNotifier struct {
	logger *log.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(msg string) {
	n.logger.Printf("[NOTIFY] %s", msg)
}

func (n *LogNotifier) SendError(msg string) {
	n.logger.Printf("[NOTIFY][ERROR] %s", msg)
}

func (n *LogNotifier) SendCritical(msg string) {
	n.logger.Printf("[NOTIFY][CRITICAL] %s", msg)
}

// Mock records notifications for tests. Safe for concurrent use since
// guard expiries deliver from timer goroutines.
type Mock struct {
	mu       sync.Mutex
	sent     []string
	errors   []string
	critical []string
}

var _ Notifier = (*Mock)(nil)

func (m *Mock) Send(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *Mock) SendError(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *Mock) SendCritical(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.critical = append(m.critical, msg)
}

// Sent returns a copy of delivered info messages.
func (m *Mock) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

// Errors returns a copy of delivered error messages.
func (m *Mock) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// Critical returns a copy of delivered critical messages.
func (m *Mock) Critical() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.critical...)
}
