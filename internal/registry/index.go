package registry

// indexer keeps a secondary lookup over store slots in step with the
// records. All methods run with the store lock held.
type indexer[T any] interface {
	add(rec *T, slot int)
	remove(rec *T, slot int)
	reset()
}

// index maps a key derived from each record to the slots holding that key.
// Records for which key reports false are not indexed.
type index[T any, K comparable] struct {
	key func(*T) (K, bool)
	pos map[K][]int
}

func newIndex[T any, K comparable](key func(*T) (K, bool)) *index[T, K] {
	return &index[T, K]{key: key, pos: make(map[K][]int)}
}

func (ix *index[T, K]) add(rec *T, slot int) {
	if k, ok := ix.key(rec); ok {
		ix.pos[k] = append(ix.pos[k], slot)
	}
}

func (ix *index[T, K]) remove(rec *T, slot int) {
	k, ok := ix.key(rec)
	if !ok {
		return
	}
	slots := ix.pos[k]
	for i, s := range slots {
		if s == slot {
			slots[i] = slots[len(slots)-1]
			slots = slots[:len(slots)-1]
			break
		}
	}
	if len(slots) == 0 {
		delete(ix.pos, k)
		return
	}
	ix.pos[k] = slots
}

func (ix *index[T, K]) reset() { clear(ix.pos) }

// slots returns the slots holding k. The result is only valid while the
// store lock is held and must not be modified.
func (ix *index[T, K]) slots(k K) []int { return ix.pos[k] }

// at returns a slots callback for upsert and has.
func (ix *index[T, K]) at(k K) func() []int {
	return func() []int { return ix.slots(k) }
}
