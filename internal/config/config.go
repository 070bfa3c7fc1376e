// Package config loads server settings from a YAML file, a .env file and
// MCP_MEMORY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppName names the config file, env prefix and data directory.
const AppName = "mcp-memory"

const envPrefix = "MCP_MEMORY"

type Config struct {
	LogLevel      string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat     string `mapstructure:"log_format" validate:"oneof=console json"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" validate:"min=1,max=1024"`
	LogMaxBackups int    `mapstructure:"log_max_backups" validate:"min=0,max=100"`

	// ListenAddr enables the WebSocket transport when set. Empty means stdio only.
	ListenAddr     string `mapstructure:"listen_addr" validate:"omitempty,hostname_port"`
	MaxConnections int    `mapstructure:"max_connections" validate:"min=0,max=1024"`
	Workers        int    `mapstructure:"workers" validate:"min=1,max=64"`
	QueueSize      int    `mapstructure:"queue_size" validate:"min=1,max=4096"`

	AuditEnabled    bool   `mapstructure:"audit_enabled"`
	AuditFile       string `mapstructure:"audit_file" validate:"required_if=AuditEnabled true"`
	AuditMaxSizeMB  int    `mapstructure:"audit_max_size_mb" validate:"min=1,max=1024"`
	AuditMaxBackups int    `mapstructure:"audit_max_backups" validate:"min=0,max=100"`

	Output string `mapstructure:"output" validate:"oneof=json yaml"`
}

func Default() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		LogMaxSizeMB:    10,
		LogMaxBackups:   3,
		MaxConnections:  16,
		Workers:         4,
		QueueSize:       64,
		AuditFile:       filepath.Join(GetDataDir(), "audit.jsonl"),
		AuditMaxSizeMB:  10,
		AuditMaxBackups: 3,
		Output:          "json",
	}
}

// Load reads cfgFile, or mcp-memory.yaml from the standard locations when
// cfgFile is empty. A missing file is not an error; an invalid value is.
func Load(cfgFile string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Default())

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		for _, dir := range configDirs() {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_max_size_mb", d.LogMaxSizeMB)
	v.SetDefault("log_max_backups", d.LogMaxBackups)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("max_connections", d.MaxConnections)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue_size", d.QueueSize)
	v.SetDefault("audit_enabled", d.AuditEnabled)
	v.SetDefault("audit_file", d.AuditFile)
	v.SetDefault("audit_max_size_mb", d.AuditMaxSizeMB)
	v.SetDefault("audit_max_backups", d.AuditMaxBackups)
	v.SetDefault("output", d.Output)
}

func configDirs() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, AppName))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".config", AppName))
	}
	if runtime.GOOS != "windows" {
		dirs = append(dirs, filepath.Join("/etc", AppName))
	}
	return append(dirs, ".")
}

// GetDataDir returns the per-user directory for the audit trail.
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, AppName)
		}
		return filepath.Join(os.Getenv("ProgramData"), AppName)
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support", AppName)
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", AppName)
		}
	}
	return filepath.Join(os.TempDir(), AppName)
}
