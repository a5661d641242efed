// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of lispd

// Package config defines lispd's parsed configuration surface: device mode,
// EID prefixes, map-resolver/map-server/RTR lists, logging and runtime
// knobs. Populated from a spf13/viper.Viper the way
// daemon/cmd/daemon_main.go's InitGlobalFlags wires cobra flags into viper
// before unmarshaling.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/lispmob/lispd/pkg/device"
)

// MapServerEntry names one map-server this device registers with.
type MapServerEntry struct {
	Address string `mapstructure:"address"`
	KeyID   uint16 `mapstructure:"key-id"`
	Key     string `mapstructure:"key"`
}

// Config is lispd's fully-resolved runtime configuration.
type Config struct {
	ModeName     string           `mapstructure:"device-mode"`
	Mode         device.Mode      `mapstructure:"-"`
	EIDPrefixes  []string         `mapstructure:"eid-prefixes"`
	MapResolvers []string         `mapstructure:"map-resolvers"`
	MapServers   []MapServerEntry `mapstructure:"map-servers"`
	RTRs         []string         `mapstructure:"rtrs"`
	Interfaces   []string         `mapstructure:"interfaces"`

	DebugLevel int    `mapstructure:"debug-level"`
	LogFile    string `mapstructure:"log-file"`
	MTU        int    `mapstructure:"mtu"`
	PIDFile    string `mapstructure:"pid-file"`

	MapRegisterInterval  time.Duration `mapstructure:"-"`
	RLOCProbingInterval  time.Duration `mapstructure:"-"`
	RLOCProbingRetries   int           `mapstructure:"-"`
	InfoRequestInterval  time.Duration `mapstructure:"-"`
}

// Defaults returns a Config with every field set to the values
// original_source/lispd/defs.h hardcodes, before user overrides are
// unmarshaled on top.
func Defaults() Config {
	return Config{
		DebugLevel:          0,
		MTU:                 1500,
		PIDFile:             "/var/run/lispd.pid",
		MapRegisterInterval: 60 * time.Second,
		RLOCProbingInterval: 30 * time.Second,
		RLOCProbingRetries:  2,
		InfoRequestInterval: 5 * time.Second,
	}
}

// Load unmarshals v on top of Defaults, resolves the device mode, and
// validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	mode, err := parseMode(cfg.ModeName)
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseMode(name string) (device.Mode, error) {
	switch name {
	case "xtr", "":
		return device.ModeXTR, nil
	case "mn":
		return device.ModeMN, nil
	case "ms":
		return device.ModeMS, nil
	case "rtr":
		return device.ModeRTR, nil
	default:
		return 0, fmt.Errorf("config: unknown device-mode %q", name)
	}
}

// Validate reports a configuration error for combinations the daemon
// cannot run with — e.g. an xTR with no EID prefixes to originate for, or
// no map-resolver to query.
func (c *Config) Validate() error {
	if c.Mode != device.ModeMS && len(c.EIDPrefixes) == 0 {
		return fmt.Errorf("config: device-mode %s requires at least one eid-prefix", c.Mode)
	}
	if c.Mode != device.ModeMS && len(c.MapResolvers) == 0 {
		return fmt.Errorf("config: device-mode %s requires at least one map-resolver", c.Mode)
	}
	if c.MTU <= 0 {
		return fmt.Errorf("config: mtu must be positive, got %d", c.MTU)
	}
	return nil
}
