package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the JWT claims shape issued by the auth frontend. Both
// signed-in and anonymous sessions carry a stable subject; anonymous
// sessions are first-class because chats can be started before signing up.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
	SessionID   string `json:"session_id,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// GetUserID returns the stable member id this session acts as.
func (c *SessionClaims) GetUserID() string {
	return c.Subject
}
