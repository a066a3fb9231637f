package utils

import (
	"sync"
)

// OptionalMutex locks only when UseMutex is set. The submission core expects
// a single controlling goroutine, so locking is opt-in.
type OptionalMutex struct {
	Mutex    sync.Mutex
	UseMutex bool
}

func (m *OptionalMutex) Lock() {
	if m.UseMutex {
		m.Mutex.Lock()
	}
}

func (m *OptionalMutex) Unlock() {
	if m.UseMutex {
		m.Mutex.Unlock()
	}
}
