package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("signing-key"))

	cfg, err := NewConfig("localhost:8000", "host=localhost", secret, []string{"http://localhost:3000"}, 50, true)
	assert.NoError(t, err)
	assert.Equal(t, "localhost:8000", cfg.ServerAddr)
	assert.Equal(t, []byte("signing-key"), cfg.SigningKey)
	assert.Equal(t, 50, cfg.PageSize)
	assert.True(t, cfg.RequireMembership)
}

func TestNewConfigDefaultsPageSize(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("signing-key"))

	cfg, err := NewConfig("localhost:8000", "host=localhost", secret, nil, 0, false)
	assert.NoError(t, err)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)

	cfg, err = NewConfig("localhost:8000", "host=localhost", secret, nil, -3, false)
	assert.NoError(t, err)
	assert.Equal(t, DefaultPageSize, cfg.PageSize)
}

func TestNewConfigValidation(t *testing.T) {
	secret := base64.StdEncoding.EncodeToString([]byte("signing-key"))

	_, err := NewConfig("", "host=localhost", secret, nil, 20, true)
	assert.Error(t, err)

	_, err = NewConfig("localhost:8000", "", secret, nil, 20, true)
	assert.Error(t, err)

	_, err = NewConfig("localhost:8000", "host=localhost", "", nil, 20, true)
	assert.Error(t, err)

	_, err = NewConfig("localhost:8000", "host=localhost", "not base64!!", nil, 20, true)
	assert.Error(t, err)
}
