// Package config provides configuration management for blocksync.
// It supports YAML or TOML configuration files, environment variables, and sensible defaults.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/blocksync/internal/logging"
	"github.com/klauern/blocksync/internal/naming"
	"github.com/klauern/blocksync/internal/scanner"
	"github.com/klauern/blocksync/internal/sync"
	"github.com/klauern/blocksync/internal/util"
)

// Config represents the complete blocksync configuration.
type Config struct {
	// Source configures the directory tree entries are imported from
	Source SourceConfig `yaml:"source" toml:"source"`

	// Naming configures the entry file naming convention
	Naming NamingConfig `yaml:"naming" toml:"naming"`

	// Store configures the document store
	Store StoreConfig `yaml:"store" toml:"store"`

	// Ledger configures the change ledger and manifest files
	Ledger LedgerConfig `yaml:"ledger" toml:"ledger"`

	// Backup configures store snapshots
	Backup BackupConfig `yaml:"backup" toml:"backup"`

	// Import configures default import behavior
	Import ImportConfig `yaml:"import" toml:"import"`

	// Export configures default export behavior
	Export ExportConfig `yaml:"export" toml:"export"`

	// Watch configures the watch loop
	Watch WatchConfig `yaml:"watch" toml:"watch"`

	// Logging configures log output
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// SourceConfig holds source tree settings.
type SourceConfig struct {
	// Root is the directory scanned for entry files
	Root string `yaml:"root" toml:"root"`
	// MaxDepth bounds recursion below Root
	MaxDepth int `yaml:"max_depth" toml:"max_depth"`
}

// NamingConfig holds the entry file naming convention.
type NamingConfig struct {
	Prefix       string `yaml:"prefix" toml:"prefix"`
	Extension    string `yaml:"extension" toml:"extension"`
	RootCategory string `yaml:"root_category" toml:"root_category"`
}

// StoreConfig holds document store settings.
type StoreConfig struct {
	// Path is the store file
	Path string `yaml:"path" toml:"path"`
}

// LedgerConfig holds ledger file locations.
type LedgerConfig struct {
	Path         string `yaml:"path" toml:"path"`
	ManifestPath string `yaml:"manifest_path" toml:"manifest_path"`
}

// BackupConfig holds backup settings.
type BackupConfig struct {
	// Location is the backup directory path
	Location string `yaml:"location" toml:"location"`
	// Keep is the number of store snapshots to retain (0 keeps all)
	Keep int `yaml:"keep" toml:"keep"`
}

// ImportConfig holds import defaults.
type ImportConfig struct {
	// ConfirmNew asks before importing entries the ledger has never seen
	ConfirmNew bool `yaml:"confirm_new" toml:"confirm_new"`
	// Mode is the default work selection (pending, all)
	Mode string `yaml:"mode" toml:"mode"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	OutputDir string `yaml:"output_dir" toml:"output_dir"`
}

// WatchConfig holds watch loop settings.
type WatchConfig struct {
	// Debounce is how long the tree must stay quiet before a batch runs
	Debounce time.Duration `yaml:"debounce" toml:"debounce"`
	// Import runs an import batch after each change instead of only reporting status
	Import bool `yaml:"import" toml:"import"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	// Level is the minimum level (debug, info, warn, error)
	Level string `yaml:"level" toml:"level"`
	// JSON switches stderr output to JSON
	JSON bool `yaml:"json" toml:"json"`
	// File additionally writes logs to a rotated file when set
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Format is the default output format (table, json, yaml, markdown)
	Format string `yaml:"format" toml:"format"`
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
}

// Default returns the default configuration.
func Default() *Config {
	home := util.BlocksyncHome()
	rules := naming.DefaultRules()
	return &Config{
		Source: SourceConfig{
			MaxDepth: scanner.DefaultMaxDepth,
		},
		Naming: NamingConfig{
			Prefix:       rules.Prefix,
			Extension:    rules.Extension,
			RootCategory: rules.RootCategory,
		},
		Store: StoreConfig{
			Path: filepath.Join(home, "store.db"),
		},
		Ledger: LedgerConfig{
			Path:         filepath.Join(home, "ledger.txt"),
			ManifestPath: filepath.Join(home, "manifest.txt"),
		},
		Backup: BackupConfig{
			Location: util.BlocksyncBackupsPath(),
			Keep:     10,
		},
		Import: ImportConfig{
			ConfirmNew: true,
			Mode:       string(sync.ModePending),
		},
		Export: ExportConfig{
			OutputDir: "blocksync-export",
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Output: OutputConfig{
			Format: "table",
			Color:  "auto",
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// tomlFileName is the alternative TOML config file.
const tomlFileName = "config.toml"

// FilePath returns the path to the config file. A config.toml is used when
// it exists and config.yaml does not.
func FilePath() string {
	yamlPath := filepath.Join(util.BlocksyncHome(), configFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	tomlPath := filepath.Join(util.BlocksyncHome(), tomlFileName)
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath
	}
	return yamlPath
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	return LoadOrDefault(FilePath())
}

// LoadOrDefault loads path like LoadFromPath but returns the defaults with
// environment overrides when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFromPath(path)
	if err != nil && os.IsNotExist(err) {
		// No config file, use defaults with environment overrides
		cfg = Default()
		cfg.applyEnvironment()
		return cfg, nil
	}
	return cfg, err
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are decoded as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path.
func (c *Config) SaveToPath(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	data, err := c.Marshal(isTOML(path))
	if err != nil {
		return err
	}

	return util.WriteFileAtomic(path, data, 0o644)
}

// Marshal encodes the configuration as YAML, or TOML when asTOML is set.
func (c *Config) Marshal(asTOML bool) ([]byte, error) {
	if !asTOML {
		return yaml.Marshal(c)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern BLOCKSYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Source settings
	if v := os.Getenv("BLOCKSYNC_SOURCE_ROOT"); v != "" {
		c.Source.Root = v
	}
	if v := os.Getenv("BLOCKSYNC_SOURCE_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Source.MaxDepth = n
		}
	}

	// Naming settings
	if v := os.Getenv("BLOCKSYNC_NAMING_PREFIX"); v != "" {
		c.Naming.Prefix = v
	}
	if v := os.Getenv("BLOCKSYNC_NAMING_EXTENSION"); v != "" {
		c.Naming.Extension = v
	}
	if v := os.Getenv("BLOCKSYNC_NAMING_ROOT_CATEGORY"); v != "" {
		c.Naming.RootCategory = v
	}

	// Store and ledger locations
	if v := os.Getenv("BLOCKSYNC_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("BLOCKSYNC_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("BLOCKSYNC_LEDGER_MANIFEST_PATH"); v != "" {
		c.Ledger.ManifestPath = v
	}

	// Backup settings
	if v := os.Getenv("BLOCKSYNC_BACKUP_LOCATION"); v != "" {
		c.Backup.Location = v
	}
	if v := os.Getenv("BLOCKSYNC_BACKUP_KEEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Backup.Keep = n
		}
	}

	// Import and export settings
	if v := os.Getenv("BLOCKSYNC_IMPORT_CONFIRM_NEW"); v != "" {
		c.Import.ConfirmNew = parseBool(v)
	}
	if v := os.Getenv("BLOCKSYNC_IMPORT_MODE"); v != "" {
		c.Import.Mode = v
	}
	if v := os.Getenv("BLOCKSYNC_EXPORT_OUTPUT_DIR"); v != "" {
		c.Export.OutputDir = v
	}

	// Watch settings
	if v := os.Getenv("BLOCKSYNC_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Watch.Debounce = d
		}
	}
	if v := os.Getenv("BLOCKSYNC_WATCH_IMPORT"); v != "" {
		c.Watch.Import = parseBool(v)
	}

	// Logging settings
	if v := os.Getenv("BLOCKSYNC_LOGGING_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BLOCKSYNC_LOGGING_JSON"); v != "" {
		c.Logging.JSON = parseBool(v)
	}
	if v := os.Getenv("BLOCKSYNC_LOGGING_FILE"); v != "" {
		c.Logging.File = v
	}

	// Output settings
	if v := os.Getenv("BLOCKSYNC_OUTPUT_FORMAT"); v != "" {
		c.Output.Format = v
	}
	if v := os.Getenv("BLOCKSYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Rules returns the naming rules described by the configuration.
func (c *Config) Rules() naming.Rules {
	return naming.Rules{
		Prefix:       c.Naming.Prefix,
		Extension:    c.Naming.Extension,
		RootCategory: c.Naming.RootCategory,
	}
}

// ImportMode returns the import mode from config, falling back to pending.
func (c *Config) ImportMode() sync.Mode {
	mode := sync.Mode(c.Import.Mode)
	if mode.IsValid() {
		return mode
	}
	return sync.ModePending
}

// Expand resolves ~ and relative paths in every path setting against baseDir.
func (c *Config) Expand(baseDir string) {
	c.Source.Root = util.ExpandPath(c.Source.Root, baseDir)
	c.Store.Path = util.ExpandPath(c.Store.Path, baseDir)
	c.Ledger.Path = util.ExpandPath(c.Ledger.Path, baseDir)
	c.Ledger.ManifestPath = util.ExpandPath(c.Ledger.ManifestPath, baseDir)
	c.Backup.Location = util.ExpandPath(c.Backup.Location, baseDir)
	c.Export.OutputDir = util.ExpandPath(c.Export.OutputDir, baseDir)
	c.Logging.File = util.ExpandPath(c.Logging.File, baseDir)
}

// SyncConfig returns the orchestrator configuration.
func (c *Config) SyncConfig() sync.Config {
	return sync.Config{
		Root:        c.Source.Root,
		MaxDepth:    c.Source.MaxDepth,
		StorePath:   c.Store.Path,
		Rules:       c.Rules(),
		KeepBackups: c.Backup.Keep,
	}
}

// LogLevel parses the configured level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return logging.LevelInfo
	}
	return level
}

// LogFile returns the rotated log file settings.
func (c *Config) LogFile() logging.FileOptions {
	return logging.FileOptions{
		Path:       c.Logging.File,
		Level:      c.LogLevel(),
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
