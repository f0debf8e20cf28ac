package client

import (
	gojwt "github.com/golang-jwt/jwt/v5"
)

// the session token identifies the current user before the first READY
// arrives. claims are read unverified: the server is the verifier, the
// client only needs the identity hints

type SessionToken struct {
	UserId    Id
	SessionId Id
	UserName  string
	Device    string
}

func ParseSessionTokenUnverified(token string) (*SessionToken, error) {
	parser := gojwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims := parsed.Claims.(gojwt.MapClaims)

	sessionToken := &SessionToken{}

	if userIdStr, ok := claims["user_id"].(string); ok {
		if userId, err := ParseId(userIdStr); err == nil {
			sessionToken.UserId = userId
		}
	}
	if sessionIdStr, ok := claims["session_id"].(string); ok {
		if sessionId, err := ParseId(sessionIdStr); err == nil {
			sessionToken.SessionId = sessionId
		}
	}
	if userName, ok := claims["user_name"].(string); ok {
		sessionToken.UserName = userName
	}
	if device, ok := claims["device"].(string); ok {
		sessionToken.Device = device
	}

	return sessionToken, nil
}
