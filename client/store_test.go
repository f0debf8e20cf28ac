package client

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStoreIdentity(t *testing.T) {
	store := NewStore[string, int]()

	v0 := store.Version()

	store.Set("a", 1)
	v1 := store.Version()
	assert.NotEqual(t, v0, v1)

	// update on an existing key changes identity
	updated := store.Update("a", func(value int) int {
		return value + 1
	})
	assert.Equal(t, true, updated)
	v2 := store.Version()
	assert.NotEqual(t, v1, v2)
	value, ok := store.Get("a")
	assert.Equal(t, true, ok)
	assert.Equal(t, 2, value)

	// update on a missing key is a true no-op: same identity, no synthesized default
	notifications := 0
	unsub := store.Subscribe(func(snapshot map[string]int) {
		notifications += 1
	})
	updated = store.Update("missing", func(value int) int {
		return value + 1
	})
	assert.Equal(t, false, updated)
	assert.Equal(t, v2, store.Version())
	assert.Equal(t, 0, notifications)
	_, ok = store.Get("missing")
	assert.Equal(t, false, ok)

	// removing an absent key is a safe no-op
	removed := store.Remove("missing")
	assert.Equal(t, false, removed)
	assert.Equal(t, v2, store.Version())
	assert.Equal(t, 0, notifications)

	removed = store.Remove("a")
	assert.Equal(t, true, removed)
	assert.NotEqual(t, v2, store.Version())
	assert.Equal(t, 1, notifications)

	unsub()
	store.Set("b", 1)
	assert.Equal(t, 1, notifications)
}

func TestStoreSubscriberOrder(t *testing.T) {
	store := NewStore[string, int]()

	order := []int{}
	store.Subscribe(func(snapshot map[string]int) {
		order = append(order, 1)
	})
	store.Subscribe(func(snapshot map[string]int) {
		order = append(order, 2)
	})
	store.Subscribe(func(snapshot map[string]int) {
		order = append(order, 3)
	})

	store.Set("a", 1)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestStoreSetAll(t *testing.T) {
	store := NewStore[string, int]()
	store.Set("a", 1)
	store.Set("b", 2)

	var lastSnapshot map[string]int
	store.Subscribe(func(snapshot map[string]int) {
		lastSnapshot = snapshot
	})

	store.SetAll(map[string]int{
		"c": 3,
	})
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, map[string]int{"c": 3}, lastSnapshot)

	// the snapshot handed to subscribers does not alias the caller's map
	source := map[string]int{"d": 4}
	store.SetAll(source)
	source["e"] = 5
	assert.Equal(t, 1, store.Len())
}

func TestStoreClear(t *testing.T) {
	store := NewStore[string, int]()

	notifications := 0
	store.Subscribe(func(snapshot map[string]int) {
		notifications += 1
	})

	// clearing an empty store is a no-op
	store.Clear()
	assert.Equal(t, 0, notifications)

	store.Set("a", 1)
	store.Clear()
	assert.Equal(t, 2, notifications)
	assert.Equal(t, 0, store.Len())
}
