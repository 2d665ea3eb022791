package post

// Dedup tracks post identifiers already emitted within one collection
// session. It is never shared across accounts or runs.
type Dedup struct {
	seen map[string]struct{}
}

func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]struct{})}
}

// Admit records id and returns true the first time it is seen,
// false on every subsequent call with the same id.
func (d *Dedup) Admit(id string) bool {
	if _, ok := d.seen[id]; ok {
		return false
	}
	d.seen[id] = struct{}{}
	return true
}

func (d *Dedup) Len() int {
	return len(d.seen)
}
