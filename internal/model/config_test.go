package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, string(ProviderGmail), cfg.Mail.Provider)
	assert.Equal(t, 5*time.Minute, cfg.Mail.Lookback())
	assert.Equal(t, 10, cfg.Mail.MaxResults)
	assert.Equal(t, 200*time.Millisecond, cfg.Fill.Debounce())
	assert.Equal(t, time.Duration(0), cfg.Poll.Interval())
	assert.True(t, cfg.Browser.Launch)
	assert.Equal(t, "INBOX", cfg.IMAP.Mailbox)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mail:
  provider: imap
  max_results: 3
imap:
  host: mail.example.test
poll:
  interval_sec: 30
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "imap", cfg.Mail.Provider)
	assert.Equal(t, 3, cfg.Mail.MaxResults)
	assert.Equal(t, 5, cfg.Mail.LookbackMin, "unset keys keep defaults")
	assert.Equal(t, "mail.example.test", cfg.IMAP.Host)
	assert.Equal(t, "993", cfg.IMAP.Port)
	assert.Equal(t, 30*time.Second, cfg.Poll.Interval())
}

func TestLoadConfigRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mail:\n  provider: pop3\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "unknown mail provider")
}

func TestValidate(t *testing.T) {
	cfg := defaultAppConfig()
	cfg.Mail.MaxResults = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Mail.MaxResults)

	cfg.Poll.IntervalSec = -1
	assert.Error(t, cfg.Validate())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.Mail.Provider = string(ProviderIMAP)
	cfg.IMAP.Host = "imap.example.test"
	cfg.IMAP.Username = "me"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Mail, loaded.Mail)
	assert.Equal(t, cfg.IMAP, loaded.IMAP)
}
