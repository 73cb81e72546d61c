package lifecycle

import (
	"sync/atomic"
	"time"
)

// Lifecycle is the process state shared across handlers. While draining, new
// interviews and websocket upgrades are refused and readiness fails.
type Lifecycle struct {
	draining atomic.Bool
	since    atomic.Int64
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
	if draining {
		l.since.CompareAndSwap(0, time.Now().UnixNano())
	} else {
		l.since.Store(0)
	}
}

// BeginDrain marks the process draining and reports whether this call made
// the transition.
func (l *Lifecycle) BeginDrain() bool {
	if l == nil {
		return false
	}
	if !l.draining.CompareAndSwap(false, true) {
		return false
	}
	l.since.Store(time.Now().UnixNano())
	return true
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// DrainingSince is zero when not draining.
func (l *Lifecycle) DrainingSince() time.Time {
	if l == nil {
		return time.Time{}
	}
	ns := l.since.Load()
	if ns == 0 || !l.draining.Load() {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
