package conversation

import "sync"

// ThreadLocks serializes work per thread while letting distinct threads run
// in parallel. Entries are dropped once nobody holds or waits on them.
type ThreadLocks struct {
	mu    sync.Mutex
	locks map[int64]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func NewThreadLocks() *ThreadLocks {
	return &ThreadLocks{locks: make(map[int64]*threadLock)}
}

// Lock blocks until threadID is free and returns the matching unlock func.
func (l *ThreadLocks) Lock(threadID int64) (unlock func()) {
	l.mu.Lock()
	tl, ok := l.locks[threadID]
	if !ok {
		tl = &threadLock{}
		l.locks[threadID] = tl
	}
	tl.refs++
	l.mu.Unlock()

	tl.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			tl.mu.Unlock()
			l.mu.Lock()
			tl.refs--
			if tl.refs == 0 {
				delete(l.locks, threadID)
			}
			l.mu.Unlock()
		})
	}
}

func (l *ThreadLocks) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
