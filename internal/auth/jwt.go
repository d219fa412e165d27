package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clipstream/realtime-backend/internal/core/domain"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// Claims defines the structured data carried in a platform JWT
type Claims struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenManager validates tokens issued by the platform's auth service.
// This subsystem never issues end-user tokens; GenerateToken exists for
// tests and for minting service-to-service tokens.
type TokenManager struct {
	secretKey []byte
	tokenTTL  time.Duration
}

var _ ports.TokenValidator = (*TokenManager)(nil)

func NewTokenManager(secret string, tokenTTL time.Duration) *TokenManager {
	return &TokenManager{secretKey: []byte(secret), tokenTTL: tokenTTL}
}

// GenerateToken creates a new JWT access token
func (tm *TokenManager) GenerateToken(userID uuid.UUID, displayName string) (string, error) {
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.tokenTTL)),
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken parses and validates the token string
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secretKey, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// Validate implements ports.TokenValidator for the connection handshake.
func (tm *TokenManager) Validate(tokenString string) (domain.Identity, error) {
	claims, err := tm.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	if claims.UserID == uuid.Nil {
		return domain.Identity{}, errors.New("token has no user identity")
	}
	return domain.Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}
