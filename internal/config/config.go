package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/qrgen"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "LABELSERVER_"

// SearchPaths are tried in order when no explicit config file is given
var SearchPaths = []string{
	"config.yaml",
	"configs/config.yaml",
	"/etc/labelserver/config.yaml",
}

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Generator GeneratorConfig `yaml:"generator"`
	Layout    LayoutConfig    `yaml:"layout"`
	Store     StoreConfig     `yaml:"store"`
	Printers  []PrinterConfig `yaml:"printers"`
	Discovery DiscoveryConfig `yaml:"discovery"`

	// ConfigPath is the path to the config file (not serialized)
	ConfigPath string `yaml:"-"`
}

// ServerConfig represents the local HTTP server
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GeneratorConfig represents the QR image service and bulk limits
type GeneratorConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxBulkRows     int           `yaml:"max_bulk_rows"`
	BulkConcurrency int           `yaml:"bulk_concurrency"` // 0 = no limit
	// MaxQuantity caps how many copies one label may be tiled to
	MaxQuantity int `yaml:"max_quantity"`
	// GuardDuplicateBulk rejects a second bulk run while labels exist
	GuardDuplicateBulk bool `yaml:"guard_duplicate_bulk"`
	UppercaseCodes     bool `yaml:"uppercase_codes"`
}

// LayoutConfig represents label sizing defaults
type LayoutConfig struct {
	UncaptionedSizing string `yaml:"uncaptioned_sizing"` // "compact" or "square"
	PageSize          string `yaml:"page_size"`
}

// StoreConfig represents the snapshot store
type StoreConfig struct {
	Driver string `yaml:"driver"` // "badger", "sqlite" or "memory"
	Path   string `yaml:"path"`
}

// PrinterConfig represents a network label printer
type PrinterConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port,omitempty"`
	DPI     int    `yaml:"dpi,omitempty"`
	// WidthMM is the printable width of the label stock
	WidthMM float64 `yaml:"width_mm,omitempty"`
}

// DiscoveryConfig controls the network printer scan
type DiscoveryConfig struct {
	Subnets []string      `yaml:"subnets"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Generator: GeneratorConfig{
			Endpoint:           qrgen.DefaultEndpoint,
			Timeout:            30 * time.Second,
			MaxBulkRows:        500,
			MaxQuantity:        label.DefaultMaxQuantity,
			BulkConcurrency:    16,
			GuardDuplicateBulk: true,
			UppercaseCodes:     true,
		},
		Layout: LayoutConfig{
			UncaptionedSizing: "compact",
			PageSize:          string(label.PageLarge),
		},
		Store: StoreConfig{
			Driver: "badger",
			Path:   "data/snapshot",
		},
		Printers: []PrinterConfig{},
		Discovery: DiscoveryConfig{
			Subnets: []string{"192.168.1.", "192.168.0.", "10.0.0."},
			Port:    9100,
			Timeout: 100 * time.Millisecond,
		},
	}
}

// Load loads configuration from path, or from the first search path that
// exists when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	paths := SearchPaths
	if path != "" {
		paths = []string{path}
	}

	cfg := Default()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) && path == "" {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
		cfg.ConfigPath = p
		break
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides scalar settings from LABELSERVER_* variables
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("HOST", &c.Server.Host)
	str("ENDPOINT", &c.Generator.Endpoint)
	str("SIZING", &c.Layout.UncaptionedSizing)
	str("PAGE_SIZE", &c.Layout.PageSize)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_PATH", &c.Store.Path)

	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Generator.Timeout = d
	}

	return errors.Join(
		num("PORT", &c.Server.Port),
		num("MAX_BULK_ROWS", &c.Generator.MaxBulkRows),
		num("BULK_CONCURRENCY", &c.Generator.BulkConcurrency),
		num("MAX_QUANTITY", &c.Generator.MaxQuantity),
		flag("GUARD_DUPLICATE_BULK", &c.Generator.GuardDuplicateBulk),
		flag("UPPERCASE_CODES", &c.Generator.UppercaseCodes),
	)
}

// Validate checks values that would otherwise fail late
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Generator.MaxBulkRows <= 0 {
		errs = append(errs, fmt.Errorf("generator.max_bulk_rows must be positive"))
	}
	if c.Generator.MaxQuantity <= 0 {
		errs = append(errs, fmt.Errorf("generator.max_quantity must be positive"))
	}
	if _, err := label.SizingPreset(c.Layout.UncaptionedSizing); err != nil {
		errs = append(errs, fmt.Errorf("layout.uncaptioned_sizing: %w", err))
	}
	if _, err := label.ParsePageSize(c.Layout.PageSize); err != nil {
		errs = append(errs, fmt.Errorf("layout.page_size: %w", err))
	}
	for i, p := range c.Printers {
		if p.ID == "" || p.Address == "" {
			errs = append(errs, fmt.Errorf("printers[%d] needs id and address", i))
		}
	}
	return errors.Join(errs...)
}

// Sizing returns the configured default label sizing
func (c *Config) Sizing() label.Sizing {
	s, err := label.SizingPreset(c.Layout.UncaptionedSizing)
	if err != nil {
		return label.CompactSizing
	}
	return s
}

// PageSize returns the configured default label stock
func (c *Config) PageSize() label.PageSize {
	p, err := label.ParsePageSize(c.Layout.PageSize)
	if err != nil {
		return label.PageLarge
	}
	return p
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
