package client

import (
	"sync"

	"golang.org/x/exp/maps"
)

// observable map store. every mutation that changes content swaps in a new
// map and bumps the version, so consumers that diff by identity observe each
// change exactly once. entries are never mutated in place

type StoreSubscriberFunction[K comparable, V any] func(snapshot map[K]V)

type Store[K comparable, V any] struct {
	stateLock sync.Mutex
	entries   map[K]V
	version   uint64

	subscribers *callbackList[StoreSubscriberFunction[K, V]]
}

func NewStore[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{
		entries:     map[K]V{},
		subscribers: newCallbackList[StoreSubscriberFunction[K, V]](),
	}
}

// subscribers receive the new snapshot synchronously in registration order.
// the returned function removes the subscription
func (self *Store[K, V]) Subscribe(subscriber StoreSubscriberFunction[K, V]) func() {
	callbackId := self.subscribers.Add(subscriber)
	return func() {
		self.subscribers.Remove(callbackId)
	}
}

func (self *Store[K, V]) Get(key K) (V, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	value, ok := self.entries[key]
	return value, ok
}

// the returned map is the live snapshot. callers must not mutate it
func (self *Store[K, V]) Snapshot() map[K]V {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.entries
}

func (self *Store[K, V]) Len() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return len(self.entries)
}

// the version changes exactly when the snapshot identity changes
func (self *Store[K, V]) Version() uint64 {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.version
}

// replaces the contents wholesale
func (self *Store[K, V]) SetAll(entries map[K]V) {
	var snapshot map[K]V
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		self.entries = maps.Clone(entries)
		if self.entries == nil {
			self.entries = map[K]V{}
		}
		self.version += 1
		snapshot = self.entries
	}()
	self.notify(snapshot)
}

func (self *Store[K, V]) Set(key K, value V) {
	var snapshot map[K]V
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		next := maps.Clone(self.entries)
		next[key] = value
		self.entries = next
		self.version += 1
		snapshot = next
	}()
	self.notify(snapshot)
}

// applies `update` to the existing value only. a missing key is a true
// no-op: same identity, no subscriber notification
func (self *Store[K, V]) Update(key K, update func(value V) V) bool {
	var snapshot map[K]V
	updated := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		value, ok := self.entries[key]
		if !ok {
			return
		}
		next := maps.Clone(self.entries)
		next[key] = update(value)
		self.entries = next
		self.version += 1
		snapshot = next
		updated = true
	}()
	if updated {
		self.notify(snapshot)
	}
	return updated
}

// removing an absent key is a safe no-op
func (self *Store[K, V]) Remove(key K) bool {
	var snapshot map[K]V
	removed := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if _, ok := self.entries[key]; !ok {
			return
		}
		next := maps.Clone(self.entries)
		delete(next, key)
		self.entries = next
		self.version += 1
		snapshot = next
		removed = true
	}()
	if removed {
		self.notify(snapshot)
	}
	return removed
}

func (self *Store[K, V]) Clear() {
	var snapshot map[K]V
	cleared := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if len(self.entries) == 0 {
			return
		}
		self.entries = map[K]V{}
		self.version += 1
		snapshot = self.entries
		cleared = true
	}()
	if cleared {
		self.notify(snapshot)
	}
}

func (self *Store[K, V]) notify(snapshot map[K]V) {
	for _, subscriber := range self.subscribers.Get() {
		subscriber(snapshot)
	}
}

// makes a copy of the list on update so that `Get` snapshots are stable
// while callbacks run
type callbackEntry[T any] struct {
	callbackId int
	callback   T
}

type callbackList[T any] struct {
	mutex          sync.Mutex
	nextCallbackId int
	entries        []callbackEntry[T]
}

func newCallbackList[T any]() *callbackList[T] {
	return &callbackList[T]{}
}

// returns the callbacks in registration order
func (self *callbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, len(self.entries))
	for i, entry := range self.entries {
		callbacks[i] = entry.callback
	}
	return callbacks
}

func (self *callbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextCallbackId
	self.nextCallbackId += 1
	nextEntries := make([]callbackEntry[T], len(self.entries), len(self.entries)+1)
	copy(nextEntries, self.entries)
	nextEntries = append(nextEntries, callbackEntry[T]{
		callbackId: callbackId,
		callback:   callback,
	})
	self.entries = nextEntries
	return callbackId
}

func (self *callbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for i, entry := range self.entries {
		if entry.callbackId == callbackId {
			nextEntries := make([]callbackEntry[T], 0, len(self.entries)-1)
			nextEntries = append(nextEntries, self.entries[:i]...)
			nextEntries = append(nextEntries, self.entries[i+1:]...)
			self.entries = nextEntries
			return
		}
	}
}
