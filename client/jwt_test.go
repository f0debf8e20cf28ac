package client

import (
	"testing"

	"github.com/go-playground/assert/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func TestParseSessionToken(t *testing.T) {
	userId := NewId()
	sessionId := NewId()

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id":    userId.String(),
		"session_id": sessionId.String(),
		"user_name":  "ada",
		"device":     "test",
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	assert.Equal(t, nil, err)

	parsed, err := ParseSessionTokenUnverified(tokenStr)
	assert.Equal(t, nil, err)
	assert.Equal(t, userId, parsed.UserId)
	assert.Equal(t, sessionId, parsed.SessionId)
	assert.Equal(t, "ada", parsed.UserName)
	assert.Equal(t, "test", parsed.Device)
}

func TestParseSessionTokenPartialClaims(t *testing.T) {
	userId := NewId()

	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, gojwt.MapClaims{
		"user_id": userId.String(),
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	assert.Equal(t, nil, err)

	parsed, err := ParseSessionTokenUnverified(tokenStr)
	assert.Equal(t, nil, err)
	assert.Equal(t, userId, parsed.UserId)
	assert.Equal(t, true, parsed.SessionId.IsZero())
	assert.Equal(t, "", parsed.UserName)
}

func TestParseSessionTokenMalformed(t *testing.T) {
	_, err := ParseSessionTokenUnverified("not a jwt")
	assert.NotEqual(t, nil, err)
}
