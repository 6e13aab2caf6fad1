package bqhnsw

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/bqhnsw/resource"
	"github.com/hupe1980/bqhnsw/store"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the format options.
//
// Example:
//
//	max_connections: 16
//	beam_width: 100
//	search_beam_width: 200
//	merge_workers: 4
//	storage_mode: mmap
//	log:
//	  level: info
//	  format: json
//	resources:
//	  max_background_workers: 2
//	  io_limit_bytes_per_sec: 104857600
type Config struct {
	MaxConnections   int     `yaml:"max_connections,omitempty"`
	BeamWidth        int     `yaml:"beam_width,omitempty"`
	SearchBeamWidth  int     `yaml:"search_beam_width,omitempty"`
	MergeWorkers     int     `yaml:"merge_workers,omitempty"`
	StorageMode      string  `yaml:"storage_mode,omitempty"`
	LevelProbability float64 `yaml:"level_probability,omitempty"`
	Seed             *int64  `yaml:"seed,omitempty"`
	ScoreDelegate    string  `yaml:"score_delegate,omitempty"`

	Log       *LogConfig       `yaml:"log,omitempty"`
	Resources *ResourcesConfig `yaml:"resources,omitempty"`
}

// LogConfig selects the logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text (default) or json.
	Format string `yaml:"format,omitempty"`
}

// ResourcesConfig mirrors resource.Config.
type ResourcesConfig struct {
	MemoryLimitBytes     int64 `yaml:"memory_limit_bytes,omitempty"`
	MaxBackgroundWorkers int64 `yaml:"max_background_workers,omitempty"`
	IOLimitBytesPerSec   int64 `yaml:"io_limit_bytes_per_sec,omitempty"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses and validates YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields that can be checked without building a Format.
// Range checks happen in New.
func (c *Config) Validate() error {
	if _, err := store.ParseAccessMode(c.StorageMode); err != nil {
		return err
	}
	if c.Log != nil {
		if _, err := parseLogLevel(c.Log.Level); err != nil {
			return err
		}
		switch strings.ToLower(c.Log.Format) {
		case "", "text", "json":
		default:
			return fmt.Errorf("unknown log format %q", c.Log.Format)
		}
	}
	if r := c.Resources; r != nil {
		if r.MemoryLimitBytes < 0 || r.MaxBackgroundWorkers < 0 || r.IOLimitBytesPerSec < 0 {
			return fmt.Errorf("resource limits must not be negative")
		}
	}
	return nil
}

// Options converts the config into format options. Unset fields keep their
// defaults. More than one merge worker runs on an errgroup executor.
func (c *Config) Options() ([]Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var opts []Option
	if c.MaxConnections != 0 {
		opts = append(opts, WithMaxConnections(c.MaxConnections))
	}
	if c.BeamWidth != 0 {
		opts = append(opts, WithBeamWidth(c.BeamWidth))
	}
	if c.SearchBeamWidth != 0 {
		opts = append(opts, WithDefaultSearchBeamWidth(c.SearchBeamWidth))
	}
	if c.MergeWorkers != 0 {
		var exec Executor
		if c.MergeWorkers > 1 {
			exec = new(errgroup.Group)
		}
		opts = append(opts, WithMergeWorkers(c.MergeWorkers, exec))
	}
	if c.StorageMode != "" {
		mode, _ := store.ParseAccessMode(c.StorageMode)
		opts = append(opts, WithStorageMode(mode))
	}
	if c.LevelProbability != 0 {
		opts = append(opts, WithLevelProbability(c.LevelProbability))
	}
	if c.Seed != nil {
		opts = append(opts, WithSeed(*c.Seed))
	}
	if c.ScoreDelegate != "" {
		opts = append(opts, WithScoreDelegate(c.ScoreDelegate))
	}
	if c.Log != nil {
		level, _ := parseLogLevel(c.Log.Level)
		if strings.EqualFold(c.Log.Format, "json") {
			opts = append(opts, WithLogger(NewJSONLogger(level)))
		} else {
			opts = append(opts, WithLogger(NewTextLogger(level)))
		}
	}
	if r := c.Resources; r != nil {
		opts = append(opts, WithResourceController(resource.NewController(resource.Config{
			MemoryLimitBytes:     r.MemoryLimitBytes,
			MaxBackgroundWorkers: r.MaxBackgroundWorkers,
			IOLimitBytesPerSec:   r.IOLimitBytesPerSec,
		})))
	}
	return opts, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
