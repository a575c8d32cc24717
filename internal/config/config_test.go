package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8970, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 20, cfg.Agent.HistoryWindow)
}

func TestLoadParsesAndFillsDefaults(t *testing.T) {
	path := writeConfig(t, `
business:
  name: La Esquina
  address: 123 Main St
server:
  port: 9000
llm:
  anthropic:
    apiKey: sk-test
channels:
  whatsapp:
    accessToken: tok
    phoneNumberId: "12345"
    verifyToken: verify-me
    appSecret: shh
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "La Esquina", cfg.Business.Name)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind, "default preserved")
	assert.Equal(t, "sk-test", cfg.LLM.Anthropic.APIKey)
	require.NotNil(t, cfg.Channels.WhatsApp)
	assert.Equal(t, "verify-me", cfg.Channels.WhatsApp.VerifyToken)
	assert.Nil(t, cfg.Channels.Messenger)
}

func TestLoadExpandsEnvVarsInCredentials(t *testing.T) {
	t.Setenv("TEST_WA_TOKEN", "secret-token")
	path := writeConfig(t, `
business:
  name: Shop
channels:
  whatsapp:
    accessToken: ${TEST_WA_TOKEN}
    phoneNumberId: "1"
    verifyToken: v
    appSecret: s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", cfg.Channels.WhatsApp.AccessToken)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TIENDI_SERVER_PORT", "7777")
	t.Setenv("TIENDI_LOG_LEVEL", "DEBUG")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateCatchesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 99999
	cfg.Storage.Driver = "postgres"
	cfg.Channels.Messenger = &MetaChannel{}

	issues := Validate(&cfg)
	paths := make([]string, len(issues))
	for i, iss := range issues {
		paths[i] = iss.Path
	}
	assert.Contains(t, paths, "server.port")
	assert.Contains(t, paths, "storage.driver")
	assert.Contains(t, paths, "business.name")
	assert.Contains(t, paths, "llm")
	assert.Contains(t, paths, "channels.messenger.pageAccessToken")
	assert.Contains(t, paths, "channels.messenger.verifyToken")
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Business.Name = "Shop"
	cfg.LLM.OpenAI.APIKey = "sk-x"
	assert.Empty(t, Validate(&cfg))
}

func TestConfigPathHelpers(t *testing.T) {
	raw := map[string]any{}
	path, err := ParseConfigPath("server.port")
	require.NoError(t, err)
	SetValueAtPath(raw, path, 9000)

	val, ok := GetValueAtPath(raw, path)
	require.True(t, ok)
	assert.Equal(t, 9000, val)

	assert.True(t, UnsetValueAtPath(raw, path))
	_, ok = GetValueAtPath(raw, path)
	assert.False(t, ok)

	_, err = ParseConfigPath("__proto__.x")
	assert.Error(t, err)
}

func TestResolvePathsHonorsHomeOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TIENDI_HOME", dir)
	p, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, dir, p.Base)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), p.Config)
	assert.Equal(t, filepath.Join(dir, "data", "tiendi.db"), p.DatabasePath(StorageConfig{}))
	assert.Equal(t, "/tmp/x.db", p.DatabasePath(StorageConfig{Path: "/tmp/x.db"}))
}
