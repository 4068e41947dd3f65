package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is shared by access and refresh tokens; TokenType keeps one from
// being accepted where the other is expected.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// ParseJWT verifies signature, algorithm and expiry. Callers pass extra
// parser options such as jwt.WithTimeFunc or jwt.WithIssuer.
func ParseJWT(tokenString string, secret []byte, opts ...jwt.ParserOption) (*Claims, error) {
	all := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}, opts...)
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, all...)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ParseTyped is ParseJWT plus a token type and subject check.
func ParseTyped(tokenString string, secret []byte, tokenType string, opts ...jwt.ParserOption) (*Claims, error) {
	claims, err := ParseJWT(tokenString, secret, opts...)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenType || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func ExtractBearer(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
