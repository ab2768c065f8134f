package syncer

// recentIDs remembers the last few message ids the controller applied so a
// redelivered push event is ignored.
type recentIDs struct {
	ring []int64
	next int
	set  map[int64]struct{}
}

func newRecentIDs(size int) *recentIDs {
	return &recentIDs{ring: make([]int64, size), set: make(map[int64]struct{}, size)}
}

func (r *recentIDs) has(id int64) bool {
	_, ok := r.set[id]
	return ok
}

func (r *recentIDs) add(id int64) {
	if r.has(id) {
		return
	}
	if old := r.ring[r.next]; old != 0 {
		delete(r.set, old)
	}
	r.ring[r.next] = id
	r.set[id] = struct{}{}
	r.next = (r.next + 1) % len(r.ring)
}
