package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("app:\n  name: portal\n"))
	require.NoError(t, err)

	assert.Equal(t, "portal", cfg.App.Name)
	assert.Equal(t, 60*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, "/loguj", cfg.Portal.LoginPath)
	assert.Equal(t, "_token", cfg.Portal.TokenField)
	assert.Equal(t, "file", cfg.Vault.Backend)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Len(t, cfg.Attendance.Rules, 3)
	assert.Equal(t, "excused_absence", cfg.Attendance.Rules[0].Category)
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("PORTAL_TEST_URL", "https://portal.example.test")
	t.Setenv("PORTAL_TEST_REDIS_PASSWORD", "hunter2")

	cfg, err := Parse([]byte(`
portal:
  base_url: ${PORTAL_TEST_URL}
  timeout: 5s
redis:
  password: ${PORTAL_TEST_REDIS_PASSWORD}
attendance:
  rules:
    - category: absence
      keywords: [absent]
`))
	require.NoError(t, err)

	assert.Equal(t, "https://portal.example.test", cfg.Portal.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, []AttendanceRule{{Category: "absence", Keywords: []string{"absent"}}}, cfg.Attendance.Rules)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad url", yaml: "portal:\n  base_url: not a url\n"},
		{name: "unknown vault backend", yaml: "vault:\n  backend: floppy\n"},
		{name: "unknown cache backend", yaml: "cache:\n  backend: disk\n"},
		{name: "rule without keywords", yaml: "attendance:\n  rules:\n    - category: absence\n"},
		{name: "malformed yaml", yaml: "portal: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadUsesConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}
