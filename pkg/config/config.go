// Package config loads the protocol's tunables (poll_interval,
// window_period, sync_interval, sync_rounds, alpha, running_period,
// max_payload) plus the CLI-level settings, through an optional YAML
// file (via viper), environment overrides, and finally CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/viper"
)

// Protocol holds every tunable the polling protocol exposes. A config
// file or flags may override these defaults.
type Protocol struct {
	PollInterval  float64 `mapstructure:"poll_interval"`
	WindowPeriod  float64 `mapstructure:"window_period"`
	SyncInterval  float64 `mapstructure:"sync_interval"`
	SyncRounds    int     `mapstructure:"sync_rounds"`
	Alpha         float64 `mapstructure:"alpha"`
	RunningPeriod float64 `mapstructure:"running_period"`
	MaxPayload    int     `mapstructure:"max_payload"`
}

// DefaultProtocol returns the baseline protocol tunables used when no
// config file or flag overrides them.
func DefaultProtocol() Protocol {
	return Protocol{
		PollInterval:  0.3,
		WindowPeriod:  0.5,
		SyncInterval:  5.0,
		SyncRounds:    5,
		Alpha:         0.02,
		RunningPeriod: 600.0,
		MaxPayload:    1400,
	}
}

// Logging configures the ambient logging sink (pkg/logging).
type Logging struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// Root is the full configuration tree, covering both binaries' ambient
// settings. Each binary only reads the sections it needs.
type Root struct {
	Protocol Protocol `mapstructure:"protocol"`
	Logging  Logging  `mapstructure:"logging"`
	Metrics  struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"metrics"`
}

// Load reads an optional YAML file at path (ignored if empty or missing),
// applies defaults, and overlays AOI_-prefixed environment variables. CLI
// flags are applied by the caller on top of the returned Root.
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetEnvPrefix("AOI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	var root Root
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return &root, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultProtocol()
	v.SetDefault("protocol.poll_interval", d.PollInterval)
	v.SetDefault("protocol.window_period", d.WindowPeriod)
	v.SetDefault("protocol.sync_interval", d.SyncInterval)
	v.SetDefault("protocol.sync_rounds", d.SyncRounds)
	v.SetDefault("protocol.alpha", d.Alpha)
	v.SetDefault("protocol.running_period", d.RunningPeriod)
	v.SetDefault("protocol.max_payload", d.MaxPayload)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.listen", "")
}

// Validate rejects configuration errors at startup — the only failure
// kind this protocol treats as fatal.
func (r *Root) Validate() error {
	if r.Protocol.PollInterval <= 0 {
		return fmt.Errorf("config: protocol.poll_interval must be > 0")
	}
	if r.Protocol.WindowPeriod <= 0 {
		return fmt.Errorf("config: protocol.window_period must be > 0")
	}
	if r.Protocol.Alpha <= 0 || r.Protocol.Alpha > 1 {
		return fmt.Errorf("config: protocol.alpha must be in (0,1]")
	}
	if r.Protocol.SyncRounds < 0 {
		return fmt.Errorf("config: protocol.sync_rounds must be >= 0")
	}
	if r.Protocol.MaxPayload <= 0 {
		return fmt.Errorf("config: protocol.max_payload must be > 0")
	}
	return nil
}
