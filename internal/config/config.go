package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds all user-facing configuration for the registry.
type Config struct {
	Data     DataConfig     `toml:"data"`
	Tiles    TilesConfig    `toml:"tiles"`
	Anchors  AnchorsConfig  `toml:"anchors"`
	Backup   BackupConfig   `toml:"backup"`
	Assembly AssemblyConfig `toml:"assembly"`
	Log      LogConfig      `toml:"log"`
}

type DataConfig struct {
	Dir  string `toml:"dir" env:"MIDWINTER_DATA_DIR"`
	File string `toml:"file" env:"MIDWINTER_DATA_FILE"`
}

type TilesConfig struct {
	Width      int     `toml:"width" env:"MIDWINTER_TILE_WIDTH"`
	Height     int     `toml:"height" env:"MIDWINTER_TILE_HEIGHT"`
	WorldScale float64 `toml:"world_scale" env:"MIDWINTER_WORLD_SCALE"`
}

// AnchorsConfig tunes the stitching anchor resolver. Tolerance is the largest
// shared-frame distance, in pixels, at which two settlements pair up; Margin
// is how close to a side a settlement must be to count as a candidate.
type AnchorsConfig struct {
	Tolerance float64 `toml:"tolerance" env:"MIDWINTER_ANCHOR_TOLERANCE"`
	Margin    int     `toml:"margin" env:"MIDWINTER_ANCHOR_MARGIN"`
}

// BackupConfig locates snapshots. An empty Dir keeps them under the data dir.
type BackupConfig struct {
	Dir     string        `toml:"dir" env:"MIDWINTER_BACKUP_DIR"`
	Timeout time.Duration `toml:"timeout" env:"MIDWINTER_BACKUP_TIMEOUT"`
}

type AssemblyConfig struct {
	Workers int `toml:"workers" env:"MIDWINTER_ASSEMBLY_WORKERS"`
}

type LogConfig struct {
	Level  string `toml:"level" env:"MIDWINTER_LOG_LEVEL"`
	Format string `toml:"format" env:"MIDWINTER_LOG_FORMAT"`
	File   string `toml:"file" env:"MIDWINTER_LOG_FILE"`
}

// Defaults returns a Config populated with built-in default values.
func Defaults() *Config {
	return &Config{
		Data:     DataConfig{Dir: "data", File: "registry.db"},
		Tiles:    TilesConfig{Width: 512, Height: 512, WorldScale: 1.0},
		Anchors:  AnchorsConfig{Tolerance: 10, Margin: 16},
		Backup:   BackupConfig{Timeout: 30 * time.Second},
		Assembly: AssemblyConfig{Workers: 4},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads a TOML config file, then applies MIDWINTER_* environment
// overrides. If the file does not exist, built-in defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Data.File == "" {
		return fmt.Errorf("data.file is required")
	}
	if c.Tiles.Width <= 0 || c.Tiles.Height <= 0 {
		return fmt.Errorf("tiles: width and height must be positive, got %dx%d", c.Tiles.Width, c.Tiles.Height)
	}
	if c.Tiles.WorldScale <= 0 {
		return fmt.Errorf("tiles.world_scale must be positive, got %v", c.Tiles.WorldScale)
	}
	if c.Anchors.Tolerance < 0 {
		return fmt.Errorf("anchors.tolerance must not be negative, got %v", c.Anchors.Tolerance)
	}
	if c.Anchors.Margin <= 0 {
		return fmt.Errorf("anchors.margin must be positive, got %d", c.Anchors.Margin)
	}
	if c.Backup.Timeout <= 0 {
		return fmt.Errorf("backup.timeout must be positive, got %v", c.Backup.Timeout)
	}
	if c.Assembly.Workers <= 0 {
		return fmt.Errorf("assembly.workers must be positive, got %d", c.Assembly.Workers)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// BackupDir returns backup.dir, or "backups" inside dataDir when it is unset.
func (c *Config) BackupDir(dataDir string) string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(dataDir, "backups")
}
