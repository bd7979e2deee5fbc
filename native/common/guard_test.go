package common

import "testing"

func TestJobLocksBlocksNestedAcquire(t *testing.T) {
	locks := NewJobLocks()
	release, ok := locks.Acquire(7)
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	if _, ok := locks.Acquire(7); ok {
		t.Fatal("nested acquire on same job should fail")
	}
	if otherRelease, ok := locks.Acquire(8); !ok {
		t.Fatal("acquire on different job should succeed")
	} else {
		otherRelease()
	}
	release()
	release, ok = locks.Acquire(7)
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
	release()
}

func TestJobLocksReleaseIdempotent(t *testing.T) {
	locks := NewJobLocks()
	release, ok := locks.Acquire(1)
	if !ok {
		t.Fatal("acquire failed")
	}
	release()
	release()
	if _, ok := locks.Acquire(1); !ok {
		t.Fatal("double release corrupted lock table")
	}
}
