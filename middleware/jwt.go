package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for a token that parses but carries no
// character.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload of a player session.
type Claims struct {
	CharID int64 `json:"char_id"`
	jwt.RegisteredClaims
}

// GenerateToken signs a JWT for the given character with the given secret and TTL.
func GenerateToken(charID int64, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		CharID: charID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(charID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a JWT string and returns the claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.CharID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
