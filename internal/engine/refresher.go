package engine

import "time"

// refresher rate-limits dynamic config reloads. The scan loop asks Due on
// every cycle; it answers true at most once per cooldown window.
type refresher struct {
	cooldown time.Duration
	last     time.Time
	now      func() time.Time
}

func newRefresher(cooldown time.Duration) *refresher {
	return &refresher{cooldown: cooldown, now: time.Now}
}

// Due reports whether the cooldown has elapsed since the last reload, and if
// so marks the reload as taken.
func (r *refresher) Due() bool {
	now := r.now()
	if !r.last.IsZero() && now.Sub(r.last) < r.cooldown {
		return false
	}
	r.last = now
	return true
}
