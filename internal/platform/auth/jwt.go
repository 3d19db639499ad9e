package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"smartqr/internal/platform/config"
)

const issuer = "smartqr"

// Claims identify the owner of management API calls. QR codes are scoped to UserID.
type Claims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email,omitempty"`
	Scopes []string `json:"scp,omitempty"`
	jwt.RegisteredClaims
}

type TokenService struct {
	config config.JWTConfig
	now    func() time.Time
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 15 * time.Minute
	}
	return &TokenService{config: cfg, now: time.Now}
}

func (s *TokenService) GenerateAccessToken(userID, email string, scopes ...string) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if s.config.Secret == "" {
		return "", errors.New("jwt secret is not configured")
	}

	now := s.now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.Secret))
}

func (s *TokenService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid && claims.UserID != "" {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
