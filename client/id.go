package client

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ids for users, guilds, channels and messages are ULIDs so that the string
// and byte forms sort ascending by creation time

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func NewIdAt(t time.Time) Id {
	return Id(ulid.MustNew(ulid.Timestamp(t), rand.Reader))
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func RequireIdFromBytes(idBytes []byte) Id {
	id, err := IdFromBytes(idBytes)
	if err != nil {
		panic(err)
	}
	return id
}

func ParseId(idStr string) (Id, error) {
	u, err := ulid.ParseStrict(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(u), nil
}

func RequireParseId(idStr string) Id {
	id, err := ParseId(idStr)
	if err != nil {
		panic(err)
	}
	return id
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

func (self Id) Time() time.Time {
	return ulid.Time(ulid.ULID(self).Time())
}

func (self Id) IsZero() bool {
	return self == Id{}
}

func (self Id) Before(other Id) bool {
	return bytes.Compare(self[0:16], other[0:16]) < 0
}

// -1, 0, 1 ordering consistent with creation time
func CompareIds(a Id, b Id) int {
	return bytes.Compare(a[0:16], b[0:16])
}

func (self *Id) MarshalJSON() ([]byte, error) {
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(ulid.ULID(*self).String())
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) < 2 || src[0] != '"' || src[len(src)-1] != '"' {
		return fmt.Errorf("invalid id: %s", string(src))
	}
	id, err := ParseId(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = id
	return nil
}
