package collection

import "sync"

// lockRegistry hands out one exclusive lock per collection name.
type lockRegistry struct {
	locks sync.Map // name -> *sync.Mutex
}

// acquire returns the locked mutex guarding name. Get-or-create is a single
// LoadOrStore, so concurrent first callers always share one mutex.
//
// A mutex removed from the registry while a caller waited on it is stale:
// that caller releases it and retries against the current one.
func (r *lockRegistry) acquire(name string) *sync.Mutex {
	for {
		v, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
		mu := v.(*sync.Mutex)
		mu.Lock()
		if cur, ok := r.locks.Load(name); ok && cur == mu {
			return mu
		}
		mu.Unlock()
	}
}

// remove drops the lock for name. Callers must hold it.
func (r *lockRegistry) remove(name string) {
	r.locks.Delete(name)
}

// count reports how many collections currently have a lock.
func (r *lockRegistry) count() int {
	n := 0
	r.locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
