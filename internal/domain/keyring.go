package domain

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoKeysAvailable is returned when every key is parked or the ring is empty.
var ErrNoKeysAvailable = errors.New("no provider keys available")

// KeyRing hands out the primary provider's API keys round-robin.
// A key that fails with a retryable error is parked for the cooldown and
// comes back on its own once the cooldown has passed.
type KeyRing struct {
	mu       sync.RWMutex
	keys     []string
	parked   map[string]time.Time
	known    map[string]struct{}
	index    atomic.Int64
	cooldown time.Duration
	now      func() time.Time
}

// ParseKeys splits a comma-separated key list, dropping blanks.
func ParseKeys(raw string) []string {
	var keys []string
	for _, key := range strings.Split(raw, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// NewKeyRing builds a ring from keys, skipping empty and duplicate entries.
// A zero cooldown disables automatic un-parking.
func NewKeyRing(keys []string, cooldown time.Duration) *KeyRing {
	r := &KeyRing{
		parked:   make(map[string]time.Time),
		known:    make(map[string]struct{}),
		cooldown: cooldown,
		now:      time.Now,
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, seen := r.known[key]; seen {
			continue
		}
		r.known[key] = struct{}{}
		r.keys = append(r.keys, key)
	}
	return r
}

// Next returns the next usable key.
func (r *KeyRing) Next() (string, error) {
	r.unparkExpired()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.keys) == 0 {
		return "", ErrNoKeysAvailable
	}
	i := (r.index.Add(1) - 1) % int64(len(r.keys))
	return r.keys[i], nil
}

// Park removes key from rotation until the cooldown elapses. The last active key
// is never parked, so a single-key setup keeps retrying with it.
func (r *KeyRing) Park(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.known[key]; !ok {
		return
	}
	if _, already := r.parked[key]; already {
		return
	}
	if len(r.keys) <= 1 {
		return
	}
	r.parked[key] = r.now()
	active := r.keys[:0:0]
	for _, k := range r.keys {
		if k != key {
			active = append(active, k)
		}
	}
	r.keys = active
}

// Unpark puts a parked key back into rotation.
func (r *KeyRing) Unpark(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unparkLocked(key)
}

func (r *KeyRing) unparkLocked(key string) {
	if _, ok := r.parked[key]; !ok {
		return
	}
	delete(r.parked, key)
	r.keys = append(r.keys, key)
}

func (r *KeyRing) unparkExpired() {
	if r.cooldown == 0 {
		return
	}
	now := r.now()

	r.mu.RLock()
	var due []string
	for key, since := range r.parked {
		if now.Sub(since) >= r.cooldown {
			due = append(due, key)
		}
	}
	r.mu.RUnlock()
	if len(due) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range due {
		r.unparkLocked(key)
	}
}

// IsParked reports whether key is currently out of rotation.
func (r *KeyRing) IsParked(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parked[key]
	return ok
}

// ActiveCount returns the number of keys in rotation.
func (r *KeyRing) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.keys)
}

// ParkedCount returns the number of parked keys.
func (r *KeyRing) ParkedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.parked)
}

// TotalCount returns the number of distinct keys the ring was built with.
func (r *KeyRing) TotalCount() int {
	return len(r.known)
}
