package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const adminRole = "admin"

// ErrAdminDisabled is returned when no admin secret is configured.
var ErrAdminDisabled = errors.New("admin access is not configured")

// CheckAdminPassword compares password with a bcrypt hash.
func CheckAdminPassword(passwordHash, password string) error {
	if passwordHash == "" {
		return ErrAdminDisabled
	}
	return bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password))
}

// GenerateAdminToken signs an HS256 admin token valid for ttl.
func GenerateAdminToken(jwtSecret string, ttl time.Duration) (string, error) {
	if jwtSecret == "" {
		return "", ErrAdminDisabled
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"role": adminRole,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}

// ValidateAdminToken checks signature, expiry and role of tokenString.
func ValidateAdminToken(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	if jwtSecret == "" {
		return nil, ErrAdminDisabled
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if role, _ := claims["role"].(string); role != adminRole {
		return nil, errors.New("token lacks admin role")
	}
	return claims, nil
}
