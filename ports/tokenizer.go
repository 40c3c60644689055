package ports

import "time"

// AccessGrant is what an access token asserts about its bearer
type AccessGrant struct {
	ID        string
	UserID    int64
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Tokenizer converts between access grants and signed tokens.
// Only the fake booking API issues tokens; the client never parses them.
type Tokenizer interface {
	GrantToAccessToken(grant AccessGrant) (string, error)
	AccessTokenToGrant(token string) (AccessGrant, error)
}
