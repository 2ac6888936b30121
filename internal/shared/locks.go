package shared

import (
	"fmt"
	"sync"
)

// OrderLocks serializes mutating requests against the same customer order.
// The database transaction alone does not prevent two concurrent receptions
// from reading the same line quantities before either commits, so every
// reception or finalize request must hold the order's lock for its duration.
type OrderLocks struct {
	mu    sync.Mutex
	locks map[string]*orderLock
}

type orderLock struct {
	mu   sync.Mutex
	refs int
}

// NewOrderLocks builds an empty lock table.
func NewOrderLocks() *OrderLocks {
	return &OrderLocks{locks: make(map[string]*orderLock)}
}

// Lock acquires the mutex for key and returns its release function. Lock
// entries are dropped once the last holder releases, so the table stays
// bounded by the number of in-flight requests.
func (l *OrderLocks) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &orderLock{}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// OrderLockKey builds the lock key for an order natural key.
func OrderLockKey(empresa int, ejercicio int, serie string, numero int) string {
	return fmt.Sprintf("pedido:%d:%d:%s:%d", empresa, ejercicio, serie, numero)
}
