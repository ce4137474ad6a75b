package utils

import (
	"testing"

	"messenger-sync/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func settings() *config.Settings {
	return &config.Settings{
		JWTAccessKey:     "access-secret",
		JWTAccessExpire:  15,
		JWTRefreshKey:    "refresh-secret",
		JWTRefreshExpire: 60,
	}
}

func TestGenerateAndCheck(t *testing.T) {
	tokens, err := GenerateTokens(settings(), "alice", false)
	require.NoError(t, err)

	meta, err := CheckAndExtractTokenMetadata(tokens.Access, "access-secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", meta.Id)
	assert.False(t, meta.Otp)
	assert.NotZero(t, meta.Exp)

	_, err = CheckAndExtractTokenMetadata(tokens.Refresh, "access-secret")
	assert.Error(t, err, "refresh token is signed with its own key")

	meta, err = CheckAndExtractTokenMetadata(tokens.Refresh, "refresh-secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", meta.Id)
}

func TestCheckRejectsOtherAlgorithms(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"id": "alice", "otp": false})
	signed, err := tok.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = CheckAndExtractTokenMetadata(signed, "access-secret")
	assert.Error(t, err)
}

func TestCheckRejectsMissingID(t *testing.T) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"otp": false})
	signed, err := tok.SignedString([]byte("access-secret"))
	require.NoError(t, err)

	_, err = CheckAndExtractTokenMetadata(signed, "access-secret")
	assert.ErrorIs(t, err, ErrTokenClaims)
}

func TestExpiredToken(t *testing.T) {
	s := settings()
	s.JWTAccessExpire = -1
	tokens, err := GenerateTokens(s, "alice", false)
	require.NoError(t, err)

	_, err = CheckAndExtractTokenMetadata(tokens.Access, "access-secret")
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}
