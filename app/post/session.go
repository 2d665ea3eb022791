package post

// Session is one (account, window) collection attempt. It owns the
// dedup state and the collected posts, and is discarded once the post
// sequence is handed to the caller. Sessions are never reused across
// accounts, so identifier sets cannot leak between them.
type Session struct {
	Account  string
	Window   Window
	MaxItems int

	// Backoff bookkeeping, maintained by the live adapter only.
	RetriesUsed      int
	EmptyPassesInRow int

	dedup     *Dedup
	collected []Post
}

func NewSession(account string, window Window, maxItems int) *Session {
	return &Session{
		Account:  NormalizeHandle(account),
		Window:   window,
		MaxItems: maxItems,
		dedup:    NewDedup(),
	}
}

// Admit appends p iff the session is not full, p's id has not been
// seen before and p's timestamp falls inside the window. Dedup state
// is shared by every adapter feeding the same session, so an id seen
// via one source is never re-emitted via another.
func (s *Session) Admit(p Post) bool {
	if s.Full() {
		return false
	}
	if !s.Window.Contains(p.CreatedAt) {
		return false
	}
	if !s.dedup.Admit(p.ID) {
		return false
	}
	s.collected = append(s.collected, p)
	return true
}

// Full reports whether the session reached its item cap.
func (s *Session) Full() bool {
	return s.MaxItems > 0 && len(s.collected) >= s.MaxItems
}

// Posts returns the collected posts in source-visitation order.
func (s *Session) Posts() []Post {
	return s.collected
}

func (s *Session) Len() int {
	return len(s.collected)
}
