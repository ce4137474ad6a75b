package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_ACCESS_KEY", "secret")
	t.Setenv("DB_DRIVER", "sqlite")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", s.ServerPort)
	assert.Equal(t, "sqlite", s.DBDriver)
	assert.Equal(t, 100, s.HistoryLimit)
	assert.Equal(t, 40, s.SocketBurst)
	assert.Equal(t, float64(20), s.SocketRate)
	assert.Equal(t, "messenger", s.EventQueue)
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("JWT_ACCESS_KEY", "secret")
	t.Setenv("HISTORY_LIMIT", "lots")

	_, err := Load()
	assert.ErrorContains(t, err, "HISTORY_LIMIT")
}

func TestLoadRequiresAccessKey(t *testing.T) {
	t.Setenv("JWT_ACCESS_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_ACCESS_KEY", "secret")
	t.Setenv("DB_DRIVER", "oracle")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestPostgresDSN(t *testing.T) {
	s := &Settings{
		PostgresHost:     "db",
		PostgresPort:     "5432",
		PostgresUser:     "u",
		PostgresPassword: "p",
		PostgresDB:       "chat",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=chat sslmode=disable", s.PostgresDSN())
}

func TestLogger(t *testing.T) {
	s := &Settings{LogLevel: "debug", LogFormat: "console"}
	log, err := s.Logger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))

	s.LogFormat = "xml"
	_, err = s.Logger()
	assert.Error(t, err)

	s.LogFormat = "json"
	s.LogLevel = "loud"
	_, err = s.Logger()
	assert.Error(t, err)
}
