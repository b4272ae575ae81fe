package stock

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// =============================================================================
// LOCKER - per-item exclusion around read-then-write sequences
// =============================================================================

// Locker serializes requests that touch the same items. Keys are always
// acquired in sorted order so two requests over overlapping item sets cannot
// deadlock. A key that cannot be obtained yields ErrConcurrentModification.
type Locker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

// StockLockKeys returns the sorted, de-duplicated lock keys for items.
func StockLockKeys(ids []ItemID) []string {
	sorted := append([]ItemID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	keys := make([]string, 0, len(sorted))
	var last ItemID
	for i, id := range sorted {
		if i > 0 && id == last {
			continue
		}
		keys = append(keys, "stock:item:"+strconv.FormatInt(int64(id), 10))
		last = id
	}
	return keys
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted
// and dropped when nobody holds or waits for them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	held := make([]string, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(held[i])
		}
	}

	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		if err := l.acquire(ctx, key); err != nil {
			release()
			return nil, err
		}
		held = append(held, key)
	}
	return release, nil
}

func (l *LocalLocker) acquire(ctx context.Context, key string) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

func (l *LocalLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl := l.locks[key]
	<-kl.ch
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
