package client

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestIdOrdering(t *testing.T) {
	earlier := NewIdAt(time.Now().Add(-time.Hour))
	later := NewIdAt(time.Now())

	// byte and string forms both sort by creation time
	assert.Equal(t, true, earlier.Before(later))
	assert.Equal(t, false, later.Before(earlier))
	assert.Equal(t, -1, CompareIds(earlier, later))
	assert.Equal(t, 0, CompareIds(earlier, earlier))
	if later.String() < earlier.String() {
		t.Fatalf("string form not time ordered: %s < %s", later, earlier)
	}
}

func TestIdRoundTrip(t *testing.T) {
	id := NewId()

	parsed, err := ParseId(id.String())
	assert.Equal(t, nil, err)
	assert.Equal(t, id, parsed)

	fromBytes, err := IdFromBytes(id.Bytes())
	assert.Equal(t, nil, err)
	assert.Equal(t, id, fromBytes)

	_, err = ParseId("not an id")
	assert.NotEqual(t, nil, err)
	_, err = IdFromBytes([]byte{0x01})
	assert.NotEqual(t, nil, err)
}

func TestIdJson(t *testing.T) {
	id := NewId()

	idJson, err := json.Marshal(&id)
	assert.Equal(t, nil, err)
	assert.Equal(t, `"`+id.String()+`"`, string(idJson))

	var decoded Id
	assert.Equal(t, nil, json.Unmarshal(idJson, &decoded))
	assert.Equal(t, id, decoded)

	assert.NotEqual(t, nil, json.Unmarshal([]byte(`42`), &decoded))
}

func TestIdZero(t *testing.T) {
	var zero Id
	assert.Equal(t, true, zero.IsZero())
	assert.Equal(t, false, NewId().IsZero())
}
