package common

import "sync"

// JobLocks provides per-job mutual exclusion for mutating operations. A lock
// is acquired at operation entry and released on every exit path; a nested
// acquisition on the same job reports failure instead of blocking, which the
// engines surface as a reentrancy violation. Operations on distinct jobs are
// independent.
type JobLocks struct {
	mu   sync.Mutex
	held map[uint64]struct{}
}

// NewJobLocks returns an empty lock table.
func NewJobLocks() *JobLocks {
	return &JobLocks{held: make(map[uint64]struct{})}
}

// Acquire takes the lock for the supplied job and returns a release closure.
// The second return is false when the lock is already held.
func (l *JobLocks) Acquire(jobID uint64) (func(), bool) {
	if l == nil {
		return func() {}, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.held[jobID]; exists {
		return nil, false
	}
	l.held[jobID] = struct{}{}
	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, jobID)
			l.mu.Unlock()
		})
	}
	return release, true
}
