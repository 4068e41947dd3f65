package testutil

import (
	"time"

	"github.com/AfshinJalili/rentabili/libs/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	DemoUserID  = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	OtherUserID = uuid.MustParse("00000000-0000-0000-0000-000000000002")
)

// GenerateJWT signs a token of the given type the way the API does.
func GenerateJWT(userID uuid.UUID, tokenType string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := auth.Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rentabili",
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func GenerateAccessToken(userID uuid.UUID, secret []byte) (string, error) {
	return GenerateJWT(userID, auth.TokenTypeAccess, secret, 15*time.Minute, time.Now())
}
