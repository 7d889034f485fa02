package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// MailConfig selects and tunes the mail provider used for check cycles.
type MailConfig struct {
	// Provider is "gmail" or "imap".
	Provider string `mapstructure:"provider" yaml:"provider"`

	// LookbackMin limits listing to messages newer than this many minutes
	// (unread messages are always included).
	LookbackMin int `mapstructure:"lookback_min" yaml:"lookback_min"`

	// MaxResults caps how many message ids a listing returns.
	MaxResults int `mapstructure:"max_results" yaml:"max_results"`

	// MaxAgeMin only produces a freshness warning; it never blocks extraction.
	MaxAgeMin int `mapstructure:"max_age_min" yaml:"max_age_min"`
}

// GmailConfig holds the OAuth client used for the Gmail API.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`

	// RedirectURL is only used by the paste-the-code flow. When empty,
	// sign-in runs a loopback listener instead.
	RedirectURL string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// IMAPConfig holds the IMAP server settings. The password lives in the
// system keyring, never in this file.
type IMAPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
	Mailbox  string `mapstructure:"mailbox" yaml:"mailbox"`
}

// BrowserConfig controls how the DevTools connection is established.
type BrowserConfig struct {
	// ControlURL is the DevTools websocket of an already running browser.
	ControlURL string `mapstructure:"control_url" yaml:"control_url"`

	// Launch starts a new browser when ControlURL is empty.
	Launch   bool `mapstructure:"launch" yaml:"launch"`
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// FillConfig tunes the page-side retry behaviour.
type FillConfig struct {
	DebounceMs int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	SettleMs   int `mapstructure:"settle_ms" yaml:"settle_ms"`
}

// PollConfig enables periodic checks in watch mode. Zero means manual only.
type PollConfig struct {
	IntervalSec int `mapstructure:"interval_sec" yaml:"interval_sec"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// StoreConfig holds the location of the local database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Gmail   GmailConfig   `mapstructure:"gmail" yaml:"gmail"`
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Fill    FillConfig    `mapstructure:"fill" yaml:"fill"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
}

// Lookback returns the listing window as a duration.
func (c MailConfig) Lookback() time.Duration {
	return time.Duration(c.LookbackMin) * time.Minute
}

// MaxAge returns the freshness warning threshold as a duration.
func (c MailConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeMin) * time.Minute
}

// Debounce returns the mutation debounce delay.
func (c FillConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Settle returns the delay between installing the page hooks and the
// first fill attempt.
func (c FillConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// Interval returns the poll interval, or zero for manual checks only.
func (c PollConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// ConfigDir returns ~/.config/otpfill, falling back to the working directory.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "otpfill")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/otpfill/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Mail: MailConfig{
			Provider:    string(ProviderGmail),
			LookbackMin: 5,
			MaxResults:  10,
			MaxAgeMin:   10,
		},
		IMAP: IMAPConfig{
			Port:    "993",
			TLS:     true,
			Mailbox: "INBOX",
		},
		Browser: BrowserConfig{
			Launch: true,
		},
		Fill: FillConfig{
			DebounceMs: 200,
			SettleMs:   300,
		},
		Log: LogConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Path: filepath.Join(ConfigDir(), "otpfill.db"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OTPFILL")
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	def := defaultAppConfig()
	v.SetDefault("mail.provider", def.Mail.Provider)
	v.SetDefault("mail.lookback_min", def.Mail.LookbackMin)
	v.SetDefault("mail.max_results", def.Mail.MaxResults)
	v.SetDefault("mail.max_age_min", def.Mail.MaxAgeMin)
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("imap.tls", def.IMAP.TLS)
	v.SetDefault("imap.mailbox", def.IMAP.Mailbox)
	v.SetDefault("browser.launch", def.Browser.Launch)
	v.SetDefault("fill.debounce_ms", def.Fill.DebounceMs)
	v.SetDefault("fill.settle_ms", def.Fill.SettleMs)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("store.path", def.Store.Path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch ProviderType(c.Mail.Provider) {
	case ProviderGmail, ProviderIMAP:
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail.Provider)
	}
	if c.Mail.MaxResults < 1 {
		c.Mail.MaxResults = 10
	}
	if c.Fill.DebounceMs < 0 {
		return fmt.Errorf("fill.debounce_ms must not be negative")
	}
	if c.Poll.IntervalSec < 0 {
		return fmt.Errorf("poll.interval_sec must not be negative")
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mail", cfg.Mail)
	v.Set("gmail", cfg.Gmail)
	v.Set("imap", cfg.IMAP)
	v.Set("browser", cfg.Browser)
	v.Set("fill", cfg.Fill)
	v.Set("poll", cfg.Poll)
	v.Set("log", cfg.Log)
	v.Set("store", cfg.Store)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
