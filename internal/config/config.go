// Package config handles module configuration loading using viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full configuration surface of the networking layer.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Features FeatureConfig  `mapstructure:"features"`
	Tuning   TuningConfig   `mapstructure:"tuning"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig describes the hosted server identity.
type ServerConfig struct {
	Name       string `mapstructure:"name"`
	Password   string `mapstructure:"password"`
	Tags       string `mapstructure:"tags"`
	MaxClients int    `mapstructure:"max_clients"`
	Port       int    `mapstructure:"port"`
	IPv6       bool   `mapstructure:"ipv6"`
	PlayerName string `mapstructure:"player_name"`
}

// FeatureConfig toggles optional subsystems.
type FeatureConfig struct {
	LagCompensation bool `mapstructure:"lag_compensation"`
	Prediction      bool `mapstructure:"prediction"`
	AntiCheat       bool `mapstructure:"anti_cheat"`
	VoiceChat       bool `mapstructure:"voice_chat"`
	Encryption      bool `mapstructure:"encryption"`
	Compression     bool `mapstructure:"compression"`
	Downloads       bool `mapstructure:"downloads"`
}

// TuningConfig holds the numeric knobs.
type TuningConfig struct {
	TickRate       float64 `mapstructure:"tick_rate"`       // simulation ticks per second, 10..128
	MaxPingMillis  int     `mapstructure:"max_ping"`        // 50..1000
	BandwidthLimit int     `mapstructure:"bandwidth_limit"` // KB/s per connection, 0 = unlimited
}

// BrowserConfig configures server discovery.
type BrowserConfig struct {
	MasterServers []string `mapstructure:"master_servers"` // websocket URLs
}

// LogConfig configures the diagnostic log.
type LogConfig struct {
	File  string `mapstructure:"file"` // empty = stderr only
	Debug bool   `mapstructure:"debug"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file and applies NETCODE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()

	dir := filepath.Dir(path)
	filename := filepath.Base(path)
	fileExt := filepath.Ext(filename)
	nameWithoutExt := strings.TrimSuffix(filename, fileExt)

	v.SetConfigName(nameWithoutExt)
	v.SetConfigType(strings.TrimPrefix(fileExt, "."))
	v.AddConfigPath(dir)

	v.SetEnvPrefix("NETCODE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults fills zero values and clamps the tuning knobs into their
// documented ranges.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "Netcode Server"
	}
	if cfg.Server.PlayerName == "" {
		cfg.Server.PlayerName = "Player"
	}
	if cfg.Server.MaxClients <= 0 || cfg.Server.MaxClients > 64 {
		cfg.Server.MaxClients = 32
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7777
	}

	if cfg.Tuning.TickRate == 0 {
		cfg.Tuning.TickRate = 60
	}
	if cfg.Tuning.TickRate < 10 {
		cfg.Tuning.TickRate = 10
	}
	if cfg.Tuning.TickRate > 128 {
		cfg.Tuning.TickRate = 128
	}

	if cfg.Tuning.MaxPingMillis == 0 {
		cfg.Tuning.MaxPingMillis = 500
	}
	if cfg.Tuning.MaxPingMillis < 50 {
		cfg.Tuning.MaxPingMillis = 50
	}
	if cfg.Tuning.MaxPingMillis > 1000 {
		cfg.Tuning.MaxPingMillis = 1000
	}

	if cfg.Tuning.BandwidthLimit < 0 {
		cfg.Tuning.BandwidthLimit = 0
	}
}
