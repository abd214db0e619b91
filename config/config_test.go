package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadAPIKeyFileJSONObject(t *testing.T) {
	path := writeKeyFile(t, `{"apiKey": "abc123"}`)

	key, err := ReadAPIKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
}

func TestReadAPIKeyFileJSONString(t *testing.T) {
	path := writeKeyFile(t, `"abc123"`)

	key, err := ReadAPIKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
}

func TestReadAPIKeyFilePlainText(t *testing.T) {
	path := writeKeyFile(t, "abc123\n")

	key, err := ReadAPIKeyFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", key)
}

func TestReadAPIKeyFileObjectWithoutKey(t *testing.T) {
	path := writeKeyFile(t, `{"token": "abc123"}`)

	_, err := ReadAPIKeyFile(path)
	assert.Error(t, err)
}

func TestReadAPIKeyFileEmpty(t *testing.T) {
	path := writeKeyFile(t, "   \n")

	_, err := ReadAPIKeyFile(path)
	assert.Error(t, err)
}

func TestReadAPIKeyFileMissing(t *testing.T) {
	_, err := ReadAPIKeyFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "carrito", cfg.Mongo.Database)
	assert.Equal(t, "STGO", cfg.Sender.CountyCode)
	assert.Equal(t, "SAN ALFONSO", cfg.Sender.StreetName)
	assert.Equal(t, 100, cfg.Sender.StreetNumber)
	assert.Equal(t, 96756430, cfg.Carrier.AccountRut)
}
