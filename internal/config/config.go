package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const configName = ".campusdesk"

// Config represents the application configuration. It never holds the
// password or the live session tokens; those live in the vault and the store.
type Config struct {
	Portal  PortalConfig  `yaml:"portal" mapstructure:"portal"`
	Login   LoginConfig   `yaml:"login" mapstructure:"login"`
	Captcha CaptchaConfig `yaml:"captcha" mapstructure:"captcha"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Vault   VaultConfig   `yaml:"vault" mapstructure:"vault"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Format  FormatConfig  `yaml:"format" mapstructure:"format"`
}

// PortalConfig contains portal connection settings
type PortalConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
	Timeout   string `yaml:"timeout" mapstructure:"timeout"`
	// InsecureSkipVerify disables certificate validation. The portal serves a
	// certificate chain that standard verification rejects, so the default is
	// true for compatibility. Turn it off for any other deployment.
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
	RateLimit          float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	DefaultLanding     string  `yaml:"default_landing" mapstructure:"default_landing"`
}

// LoginConfig bounds the retry loops of the login flow
type LoginConfig struct {
	SetupAttempts     int    `yaml:"setup_attempts" mapstructure:"setup_attempts"`
	SetupDelay        string `yaml:"setup_delay" mapstructure:"setup_delay"`
	ChallengeAttempts int    `yaml:"challenge_attempts" mapstructure:"challenge_attempts"`
	ChallengeDelay    string `yaml:"challenge_delay" mapstructure:"challenge_delay"`
	MaxAttempts       int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RecoveryAttempts  int    `yaml:"recovery_attempts" mapstructure:"recovery_attempts"`
}

// CaptchaConfig locates the classifier weights
type CaptchaConfig struct {
	ModelPath string `yaml:"model_path" mapstructure:"model_path"`
}

// StorageConfig contains application state storage settings
type StorageConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// VaultConfig contains OS credential store settings
type VaultConfig struct {
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// FormatConfig contains output formatting settings
type FormatConfig struct {
	Default string `yaml:"default" mapstructure:"default"`
	Colors  bool   `yaml:"colors" mapstructure:"colors"`
}

var (
	globalConfig *Config
	debug        bool
	outputFormat string
)

// Initialize loads the configuration from file
func Initialize(configFile string) error {
	v := viper.New()
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not get home directory: %w", err)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(home)
		v.SetConfigType("yaml")
		v.SetConfigName(configName)
	}

	v.SetEnvPrefix("CAMPUSDESK")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	defaults := Default(home)
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := writeConfig(filepath.Join(home, configName+".yaml"), defaults); err != nil {
				return fmt.Errorf("could not create default config: %w", err)
			}
		} else {
			return fmt.Errorf("could not read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("could not unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	globalConfig = cfg
	return nil
}

// Default returns the built-in configuration rooted at home.
func Default(home string) *Config {
	dataDir := filepath.Join(home, ".campusdesk.d")
	return &Config{
		Portal: PortalConfig{
			BaseURL:            "https://vtop.vit.ac.in/vtop",
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			Timeout:            "30s",
			InsecureSkipVerify: true,
			RateLimit:          5,
			DefaultLanding:     "/content",
		},
		Login: LoginConfig{
			SetupAttempts:     10,
			SetupDelay:        "500ms",
			ChallengeAttempts: 5,
			ChallengeDelay:    "1s",
			MaxAttempts:       3,
			RecoveryAttempts:  2,
		},
		Captcha: CaptchaConfig{
			ModelPath: filepath.Join(dataDir, "captcha.model"),
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "state"),
		},
		Vault: VaultConfig{
			ServiceName: "campusdesk",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Format: FormatConfig{
			Default: "table",
			Colors:  true,
		},
	}
}

// setDefaults registers every key of d with viper so env overrides apply
// even when the file omits them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("portal.base_url", d.Portal.BaseURL)
	v.SetDefault("portal.user_agent", d.Portal.UserAgent)
	v.SetDefault("portal.timeout", d.Portal.Timeout)
	v.SetDefault("portal.insecure_skip_verify", d.Portal.InsecureSkipVerify)
	v.SetDefault("portal.rate_limit", d.Portal.RateLimit)
	v.SetDefault("portal.default_landing", d.Portal.DefaultLanding)
	v.SetDefault("login.setup_attempts", d.Login.SetupAttempts)
	v.SetDefault("login.setup_delay", d.Login.SetupDelay)
	v.SetDefault("login.challenge_attempts", d.Login.ChallengeAttempts)
	v.SetDefault("login.challenge_delay", d.Login.ChallengeDelay)
	v.SetDefault("login.max_attempts", d.Login.MaxAttempts)
	v.SetDefault("login.recovery_attempts", d.Login.RecoveryAttempts)
	v.SetDefault("captcha.model_path", d.Captcha.ModelPath)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("vault.service_name", d.Vault.ServiceName)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("format.default", d.Format.Default)
	v.SetDefault("format.colors", d.Format.Colors)
}

func writeConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks values that viper cannot type check.
func (c *Config) Validate() error {
	for key, value := range map[string]string{
		"portal.timeout":        c.Portal.Timeout,
		"login.setup_delay":     c.Login.SetupDelay,
		"login.challenge_delay": c.Login.ChallengeDelay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
	}
	if c.Portal.BaseURL == "" {
		return fmt.Errorf("portal.base_url is required")
	}
	if c.Login.SetupAttempts < 1 || c.Login.ChallengeAttempts < 1 || c.Login.MaxAttempts < 1 || c.Login.RecoveryAttempts < 1 {
		return fmt.Errorf("login attempt counts must be at least 1")
	}
	return nil
}

// TimeoutDuration returns the portal request timeout
func (p PortalConfig) TimeoutDuration() time.Duration {
	return mustDuration(p.Timeout)
}

// SetupDelayDuration returns the pause between setup retries
func (l LoginConfig) SetupDelayDuration() time.Duration {
	return mustDuration(l.SetupDelay)
}

// ChallengeDelayDuration returns the pause between challenge retries
func (l LoginConfig) ChallengeDelayDuration() time.Duration {
	return mustDuration(l.ChallengeDelay)
}

// mustDuration parses a duration already checked by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Get returns the global configuration
func Get() *Config {
	if globalConfig == nil {
		home, _ := os.UserHomeDir()
		globalConfig = Default(home)
	}
	return globalConfig
}

// Set replaces the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}

// SetDebug sets the debug mode
func SetDebug(enabled bool) {
	debug = enabled
}

// IsDebug returns whether debug mode is enabled
func IsDebug() bool {
	return debug
}

// SetOutputFormat sets the output format
func SetOutputFormat(format string) {
	outputFormat = format
}

// GetOutputFormat returns the current output format
func GetOutputFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	if globalConfig != nil {
		return globalConfig.Format.Default
	}
	return "table"
}
