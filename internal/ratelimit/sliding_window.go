package ratelimit

import "time"

// windowLog is the per-key log of admitted request timestamps.
type windowLog []time.Time

// prune drops timestamps at or before cutoff. It allocates a new slice so the
// caller's input is not modified.
func (w windowLog) prune(cutoff time.Time) windowLog {
	kept := make(windowLog, 0, len(w)+1)
	for _, t := range w {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// oldest returns the earliest timestamp, or the zero time.
func (w windowLog) oldest() time.Time {
	var earliest time.Time
	for i, t := range w {
		if i == 0 || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// without removes the first timestamp equal to at.
func (w windowLog) without(at time.Time) (windowLog, bool) {
	for i, t := range w {
		if t.Equal(at) {
			out := make(windowLog, 0, len(w)-1)
			out = append(out, w[:i]...)
			return append(out, w[i+1:]...), true
		}
	}
	return w, false
}

// decide evaluates one request against the log. The returned log is what
// must be stored: stale entries are always dropped, and now is appended only
// when the request is admitted.
func decide(current []time.Time, now time.Time, window time.Duration, limit int) (windowLog, Result) {
	kept := windowLog(current).prune(now.Add(-window))

	if len(kept) >= limit {
		retry := kept.oldest().Add(window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return kept, Result{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			ResetAfter: retry,
			RetryAfter: retry,
		}
	}

	kept = append(kept, now)
	return kept, Result{
		Allowed:    true,
		Limit:      limit,
		Remaining:  limit - len(kept),
		ResetAfter: kept.oldest().Add(window).Sub(now),
		RecordedAt: now,
	}
}
