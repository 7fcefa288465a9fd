package services

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// userTokenTTL bounds how long a storefront widget can reuse a token.
const userTokenTTL = 24 * time.Hour

// UserClaims are the storefront proxy token claims: which shop and which
// customer email a verification status check is allowed for.
type UserClaims struct {
	ShopID uint   `json:"shop_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// CreateUserToken signs a short-lived token binding a customer email to
// a shop for the pre-checkout widget.
func CreateUserToken(secret string, shopID uint, email string) (string, error) {
	claims := UserClaims{
		ShopID: shopID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(userTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// VerifyUserToken parses and validates a user token, returning its
// claims.
func VerifyUserToken(secret, tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse user token: %w", err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid user token")
	}

	return claims, nil
}
