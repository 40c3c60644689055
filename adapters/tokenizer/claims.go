package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with the booking user's email
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}
