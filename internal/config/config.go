// Package config is used to load the configuration file
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/blacktop/mxsym/internal/utils"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// DefaultDeviceSupport is where Xcode copies device symbols when a device is attached
	DefaultDeviceSupport = "~/Library/Developer/Xcode/iOS DeviceSupport"

	UUIDToolDwarfdump = "dwarfdump"
	UUIDToolMacho     = "macho"

	ResolverAtos  = "atos"
	ResolverMacho = "macho"
)

type tools struct {
	UUID      string        `mapstructure:"uuid-tool"`
	Resolver  string        `mapstructure:"resolver"`
	Dwarfdump string        `mapstructure:"dwarfdump"`
	Atos      string        `mapstructure:"atos"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// Config is the configuration struct
type Config struct {
	ReportPath    string `mapstructure:"report-path"`
	SymbolsPath   string `mapstructure:"symbols-path"`
	BinaryName    string `mapstructure:"binary-name"`
	DeviceSupport string `mapstructure:"device-support"`
	AllRoots      bool   `mapstructure:"all-roots"`
	Arch          string `mapstructure:"arch"`
	SystemArch    string `mapstructure:"system-arch"`
	Demangle      bool   `mapstructure:"demangle"`
	MaxDepth      int    `mapstructure:"max-depth"`
	Color         bool   `mapstructure:"color"`
	Verbose       bool   `mapstructure:"verbose"`
	Tools         tools  `mapstructure:",squash"`
}

func (c *Config) verify() error {
	switch c.Tools.UUID {
	case "":
		c.Tools.UUID = UUIDToolDwarfdump
	case UUIDToolDwarfdump, UUIDToolMacho:
	default:
		return fmt.Errorf("config: unknown uuid-tool %q (expected %s or %s)", c.Tools.UUID, UUIDToolDwarfdump, UUIDToolMacho)
	}
	switch c.Tools.Resolver {
	case "":
		c.Tools.Resolver = ResolverAtos
	case ResolverAtos, ResolverMacho:
	default:
		return fmt.Errorf("config: unknown resolver %q (expected %s or %s)", c.Tools.Resolver, ResolverAtos, ResolverMacho)
	}
	if c.Tools.Dwarfdump == "" {
		c.Tools.Dwarfdump = "dwarfdump"
	}
	if c.Tools.Atos == "" {
		c.Tools.Atos = "atos"
	}
	if c.Tools.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	if c.Arch == "" {
		c.Arch = "arm64"
	}
	if c.SystemArch == "" {
		c.SystemArch = "arm64e"
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 1024
	}
	if c.DeviceSupport == "" {
		c.DeviceSupport = DefaultDeviceSupport
	}
	ds, err := utils.ExpandHome(c.DeviceSupport)
	if err != nil {
		return fmt.Errorf("config: failed to expand device-support path: %v", err)
	}
	c.DeviceSupport = filepath.Clean(ds)
	return nil
}

// LoadConfig loads the configuration from viper (config file, env and bound flags)
func LoadConfig() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	var c Config

	if err := v.Unmarshal(&c, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}

	if err := c.verify(); err != nil {
		return nil, fmt.Errorf("config: failed to verify: %v", err)
	}

	return &c, nil
}
