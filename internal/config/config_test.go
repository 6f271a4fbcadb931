package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeCreatesDefaultFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, Initialize(""))

	_, err := os.Stat(filepath.Join(home, ".campusdesk.yaml"))
	require.NoError(t, err)

	cfg := Get()
	assert.Equal(t, "https://vtop.vit.ac.in/vtop", cfg.Portal.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Portal.TimeoutDuration())
	assert.Equal(t, 10, cfg.Login.SetupAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Login.SetupDelayDuration())
	assert.True(t, cfg.Portal.InsecureSkipVerify)
	assert.Equal(t, filepath.Join(home, ".campusdesk.d", "state"), cfg.Storage.Path)
}

func TestInitializeReadsFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("CAMPUSDESK_LOGIN_MAX_ATTEMPTS", "7")

	path := filepath.Join(home, "custom.yaml")
	content := []byte("portal:\n  base_url: https://portal.example.edu\n  timeout: 5s\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, content, 0600))

	require.NoError(t, Initialize(path))

	cfg := Get()
	assert.Equal(t, "https://portal.example.edu", cfg.Portal.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Portal.TimeoutDuration())
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.Login.MaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Login.RecoveryAttempts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"bad timeout", func(c *Config) { c.Portal.Timeout = "soon" }, true},
		{"bad setup delay", func(c *Config) { c.Login.SetupDelay = "" }, true},
		{"missing base url", func(c *Config) { c.Portal.BaseURL = "" }, true},
		{"zero attempts", func(c *Config) { c.Login.RecoveryAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
