package collab

import "time"

// Scheduler decides when pending changes are written. a save happens once
// no change arrived for Debounce, or MaxWait after the first pending
// change, whichever comes first.
type Scheduler struct {
	Debounce time.Duration
	MaxWait  time.Duration
}

// Deadline is the time at which pending changes become due
func (s Scheduler) Deadline(firstPending, lastChange time.Time) time.Time {
	deadline := lastChange.Add(s.Debounce)
	if s.MaxWait > 0 {
		if ceiling := firstPending.Add(s.MaxWait); ceiling.Before(deadline) {
			deadline = ceiling
		}
	}
	return deadline
}

// Due reports whether pending changes should be written at now. nothing
// is due without a pending change.
func (s Scheduler) Due(now, firstPending, lastChange time.Time) bool {
	if firstPending.IsZero() {
		return false
	}
	return !now.Before(s.Deadline(firstPending, lastChange))
}

// pending tracks the window of unsaved changes for one Scheduler
type pending struct {
	first time.Time
	last  time.Time
}

func (p *pending) touch(now time.Time) {
	if p.first.IsZero() {
		p.first = now
	}
	p.last = now
}

func (p *pending) reset() {
	*p = pending{}
}

func (p pending) active() bool {
	return !p.first.IsZero()
}
