package joinproxy

import "sync"

// DefaultMaxRecent is how many game ids are remembered by default.
const DefaultMaxRecent = 10

// Recent keeps the most recently joined distinct game ids, oldest first.
type Recent struct {
	mu  sync.Mutex
	ids []string
	max int
}

// NewRecent creates an empty list holding at most max ids.
func NewRecent(max int) *Recent {
	if max <= 0 {
		max = DefaultMaxRecent
	}
	return &Recent{max: max}
}

// Add remembers id. An id already present keeps its position.
func (r *Recent) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.ids {
		if v == id {
			return
		}
	}
	r.ids = append(r.ids, id)
	if len(r.ids) > r.max {
		r.ids = append([]string(nil), r.ids[len(r.ids)-r.max:]...)
	}
}

// List returns a copy of the ids.
func (r *Recent) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}
