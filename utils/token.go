package utils

import (
	"errors"
	"time"

	"messenger-sync/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenClaims = errors.New("token claims are missing or malformed")

// Tokens struct to describe tokens object.
type Tokens struct {
	Access  string
	Refresh string
}

// TokenMetadata struct to describe metadata in JWT.
type TokenMetadata struct {
	Id  string
	Otp bool
	Exp int64
}

// GenerateTokens mints an access and a refresh token for id. otp marks a
// session that still has to pass second-factor verification.
func GenerateTokens(s *config.Settings, id string, otp bool) (*Tokens, error) {
	accessToken, err := generateToken(id, otp, s.JWTAccessExpire, s.JWTAccessKey)
	if err != nil {
		return nil, err
	}

	refreshKey := s.JWTRefreshKey
	if refreshKey == "" {
		refreshKey = s.JWTAccessKey
	}
	refreshToken, err := generateToken(id, otp, s.JWTRefreshExpire, refreshKey)
	if err != nil {
		return nil, err
	}

	return &Tokens{
		Access:  accessToken,
		Refresh: refreshToken,
	}, nil
}

func generateToken(id string, otp bool, minutes int, key string) (string, error) {
	claims := jwt.MapClaims{}

	claims["id"] = id
	claims["otp"] = otp
	claims["exp"] = time.Now().Add(time.Minute * time.Duration(minutes)).Unix()

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString([]byte(key))
}

// CheckAndExtractTokenMetadata verifies an HS512 token signed with key.
func CheckAndExtractTokenMetadata(token string, key string) (*TokenMetadata, error) {
	t, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok || !t.Valid {
		return nil, ErrTokenClaims
	}
	return metadata(claims)
}

// ClaimsMetadata reads the metadata from an already verified token, as left
// in the request locals by the JWT middleware.
func ClaimsMetadata(t *jwt.Token) (*TokenMetadata, error) {
	if t == nil {
		return nil, ErrTokenClaims
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenClaims
	}
	return metadata(claims)
}

func metadata(claims jwt.MapClaims) (*TokenMetadata, error) {
	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return nil, ErrTokenClaims
	}
	otp, _ := claims["otp"].(bool)
	exp, _ := claims["exp"].(float64)

	return &TokenMetadata{
		Id:  id,
		Otp: otp,
		Exp: int64(exp),
	}, nil
}
