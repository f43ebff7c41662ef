package utils

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrNoJWTSecret  = errors.New("JWT secret is not configured")
)

var (
	secretMu  sync.RWMutex
	jwtSecret string
)

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

func SetJWTSecret(secret string) {
	secretMu.Lock()
	jwtSecret = secret
	secretMu.Unlock()
}

// JWTEnabled reports whether a signing secret has been configured.
func JWTEnabled() bool {
	secretMu.RLock()
	defer secretMu.RUnlock()
	return jwtSecret != ""
}

func getJWTSecret() ([]byte, error) {
	secretMu.RLock()
	defer secretMu.RUnlock()
	if jwtSecret == "" {
		return nil, ErrNoJWTSecret
	}
	return []byte(jwtSecret), nil
}

// JWT Functions
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

func GenerateJWTToken(userID string) (string, error) {
	secret, err := getJWTSecret()
	if err != nil {
		return "", err
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return signedToken, nil
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	secret, err := getJWTSecret()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserIDFromToken returns the user id carried by a valid token.
func GetUserIDFromToken(token string) (string, error) {
	claims, err := ParseJWTToken(token)
	if err != nil {
		return "", err
	}

	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", ErrInvalidToken
}
