package client

import (
	"sync"
	"time"
)

// a typing indicator self-clears unless a fresh TYPING_START for the same
// (channel, user) pair arrives before the deadline. debounce, not accumulate:
// at most one live timer per pair

const DefaultTypingTimeout = 8 * time.Second

// comparable
type TypingKey struct {
	ChannelId Id
	UserId    Id
}

type TypingTracker struct {
	store   *Store[TypingKey, int64]
	timeout time.Duration

	stateLock sync.Mutex
	// never reset, so a sequence value is never reissued
	nextSeq int
	seqs    map[TypingKey]int
	timers  map[TypingKey]*time.Timer
}

func NewTypingTracker(store *Store[TypingKey, int64], timeout time.Duration) *TypingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &TypingTracker{
		store:   store,
		timeout: timeout,
		seqs:    map[TypingKey]int{},
		timers:  map[TypingKey]*time.Timer{},
	}
}

func (self *TypingTracker) Start(channelId Id, userId Id) {
	key := TypingKey{
		ChannelId: channelId,
		UserId:    userId,
	}
	deadline := time.Now().Add(self.timeout)
	self.store.Set(key, deadline.UnixMilli())

	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if timer, ok := self.timers[key]; ok {
		timer.Stop()
	}
	self.nextSeq += 1
	seq := self.nextSeq
	self.seqs[key] = seq
	self.timers[key] = time.AfterFunc(self.timeout, func() {
		self.expire(key, seq)
	})
}

// a timer stopped after it already fired still runs its queued callback. the
// sequence check keeps such a stale callback from clearing a freshly
// debounced indicator
func (self *TypingTracker) expire(key TypingKey, seq int) {
	stale := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		if self.seqs[key] != seq {
			stale = true
			return
		}
		delete(self.seqs, key)
		delete(self.timers, key)
	}()
	if stale {
		return
	}
	self.store.Remove(key)
}

// cancels every live timer and empties the store
func (self *TypingTracker) Clear() {
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		for key, timer := range self.timers {
			timer.Stop()
			delete(self.timers, key)
			delete(self.seqs, key)
		}
	}()
	self.store.Clear()
}
