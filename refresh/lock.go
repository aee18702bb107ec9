package refresh

import (
	"github.com/google/uuid"
	"sync"
)

// datasetLocks hands out one mutex per dataset. Entries are removed once nobody holds or waits for them.
type datasetLocks struct {
	mutex sync.Mutex
	locks map[uuid.UUID]*datasetLock
}

type datasetLock struct {
	sync.Mutex
	users int
}

func newDatasetLocks() *datasetLocks {
	return &datasetLocks{locks: map[uuid.UUID]*datasetLock{}}
}

// Lock blocks until the lock of the dataset is acquired and returns the function releasing it.
func (l *datasetLocks) Lock(id uuid.UUID) func() {
	l.mutex.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &datasetLock{}
		l.locks[id] = lock
	}
	lock.users++
	l.mutex.Unlock()

	lock.Lock()

	return func() {
		lock.Unlock()

		l.mutex.Lock()
		lock.users--
		if lock.users == 0 {
			delete(l.locks, id)
		}
		l.mutex.Unlock()
	}
}

func (l *datasetLocks) size() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
