package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"lecture-interpreter/internal/service/timer"
)

const (
	DefaultInactivityTimeout = 60 * time.Second
	DefaultWarningLead       = 10 * time.Second
)

// Watchdog ends a silent session. While armed, a warning fires once after
// timeout-lead of silence and the timeout fires after timeout. Any activity
// restarts both countdowns.
type Watchdog struct {
	warn      *timer.Timer
	expire    *timer.Timer
	lead      time.Duration
	armed     bool
	warned    bool
	onWarn    func(remaining time.Duration)
	onTimeout func()
}

// NewWatchdog creates a disarmed watchdog. Callbacks run through post.
func NewWatchdog(clock clockwork.Clock, timeout, lead time.Duration, post func(func()), onWarn func(remaining time.Duration), onTimeout func()) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultInactivityTimeout
	}
	if lead <= 0 || lead >= timeout {
		lead = timeout / 6
	}
	w := &Watchdog{lead: lead, onWarn: onWarn, onTimeout: onTimeout}
	w.warn = timer.New(clock, timeout-lead, post, w.fireWarning)
	w.expire = timer.New(clock, timeout, post, w.fireTimeout)
	return w
}

// Arm starts both countdowns.
func (w *Watchdog) Arm() {
	w.armed = true
	w.warned = false
	w.warn.Arm()
	w.expire.Arm()
}

// Disarm stops both countdowns.
func (w *Watchdog) Disarm() {
	w.armed = false
	w.warned = false
	w.warn.Stop()
	w.expire.Stop()
}

// Activity restarts the countdowns of an armed watchdog and clears the
// warning. It does nothing while disarmed.
func (w *Watchdog) Activity() {
	if !w.armed {
		return
	}
	w.Arm()
}

// Armed reports whether the watchdog is counting.
func (w *Watchdog) Armed() bool {
	return w.armed
}

// WarningShown reports whether the warning fired in the current window.
func (w *Watchdog) WarningShown() bool {
	return w.warned
}

func (w *Watchdog) fireWarning() {
	if !w.armed || w.warned {
		return
	}
	w.warned = true
	w.onWarn(w.lead)
}

func (w *Watchdog) fireTimeout() {
	if !w.armed {
		return
	}
	w.Disarm()
	w.onTimeout()
}
