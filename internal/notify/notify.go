// Package notify delivers user-visible notices and collapses repeats that
// share a dedupe key.
package notify

import (
	"sync"
	"time"

	"github.com/southadmin/localvault/internal/logger"
)

type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Notifier shows content to the user. dedupeKey identifies notices that
// describe the same failure.
type Notifier interface {
	Notify(kind Kind, content, dedupeKey string)
}

// DefaultWindow mirrors how long a toast stays on screen.
const DefaultWindow = 3 * time.Second

// Deduper forwards a notice only if nothing with the same dedupe key was
// forwarded within the window. An empty dedupe key is never collapsed.
type Deduper struct {
	next   Notifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDeduper(next Notifier, window time.Duration, now func() time.Time) *Deduper {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Deduper{next: next, window: window, now: now, last: make(map[string]time.Time)}
}

func (d *Deduper) Notify(kind Kind, content, dedupeKey string) {
	if dedupeKey != "" {
		d.mu.Lock()
		t := d.now()
		if prev, ok := d.last[dedupeKey]; ok && t.Sub(prev) < d.window {
			d.mu.Unlock()
			logger.Debugf("suppressed duplicate %s notice %q", kind, dedupeKey)
			return
		}
		d.last[dedupeKey] = t
		d.mu.Unlock()
	}
	d.next.Notify(kind, content, dedupeKey)
}

// LogNotifier writes notices to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(kind Kind, content, dedupeKey string) {
	switch kind {
	case KindError:
		logger.Errorf("%s (%s)", content, dedupeKey)
	case KindWarning:
		logger.Warnf("%s (%s)", content, dedupeKey)
	default:
		logger.Infof("%s (%s)", content, dedupeKey)
	}
}

// Multi fans a notice out to every notifier in order.
type Multi []Notifier

func (m Multi) Notify(kind Kind, content, dedupeKey string) {
	for _, n := range m {
		n.Notify(kind, content, dedupeKey)
	}
}

// Func adapts a plain function to Notifier.
type Func func(kind Kind, content, dedupeKey string)

func (f Func) Notify(kind Kind, content, dedupeKey string) { f(kind, content, dedupeKey) }
