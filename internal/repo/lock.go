package repo

import (
	"hash/fnv"
	"sync"
)

// userLocks serializes same-user units inside one process. Users are hashed onto a
// fixed set of stripes, so unrelated users occasionally share a stripe.
type userLocks struct {
	stripes []sync.Mutex
}

func newUserLocks(n int) *userLocks {
	return &userLocks{stripes: make([]sync.Mutex, n)}
}

func (l *userLocks) lock(userID string) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(userID))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
