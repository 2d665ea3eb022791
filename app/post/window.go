package post

import "time"

// Window is the [Start, End] time range a post must fall in to be
// collected.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow builds a recency window ending at end and reaching the
// given number of days back.
func NewWindow(end time.Time, days int) Window {
	return Window{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
