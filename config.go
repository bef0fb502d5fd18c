package mmapappend

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file form of the buffer options.
//
//	path: /var/lib/app/events.buf
//	create: true
//	size: 67108864
//	lock_timeout: 250ms
//	flush:
//	  interval: 100ms
//	  bytes_per_sec: 33554432
//	  workers: 4
//	log:
//	  level: info
//	  format: json
type Config struct {
	// Path is the backing file.
	Path string `yaml:"path"`

	// Create resets the file to Size bytes with a fresh header.
	Create bool  `yaml:"create"`
	Size   int64 `yaml:"size"`

	LockTimeout       time.Duration `yaml:"lock_timeout"`
	LockRetryInterval time.Duration `yaml:"lock_retry_interval"`

	// Populate pre-faults the mapping.
	Populate bool `yaml:"populate"`

	// PinLimitBytes caps PinPages. Zero is unlimited.
	PinLimitBytes int64 `yaml:"pin_limit_bytes"`

	Flush FlushConfig `yaml:"flush"`
	Log   LogConfig   `yaml:"log"`
}

// FlushConfig configures dirty page tracking and background write-back.
type FlushConfig struct {
	// DirtyTracking records touched pages for FlushDirty.
	DirtyTracking bool `yaml:"dirty_tracking"`

	// Interval enables the background flusher when positive.
	Interval time.Duration `yaml:"interval"`

	BytesPerSec int64 `yaml:"bytes_per_sec"`
	Workers     int   `yaml:"workers"`
}

// LogConfig selects the logger built by Config.Options.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty disables logging.
	Level string `yaml:"level"`
	// Format is text (default) or json.
	Format string `yaml:"format"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(data)
}

// ParseConfig decodes and validates YAML config data.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("mmapappend: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Path == "" {
		errs = append(errs, errors.New("path is required"))
	}
	if c.Create && c.Size < HeaderSize {
		errs = append(errs, fmt.Errorf("size must be at least %d when create is set", HeaderSize))
	}
	if c.LockTimeout < 0 {
		errs = append(errs, errors.New("lock_timeout must not be negative"))
	}
	if c.PinLimitBytes < 0 {
		errs = append(errs, errors.New("pin_limit_bytes must not be negative"))
	}
	if c.Flush.Interval < 0 {
		errs = append(errs, errors.New("flush.interval must not be negative"))
	}
	if c.Flush.BytesPerSec < 0 {
		errs = append(errs, errors.New("flush.bytes_per_sec must not be negative"))
	}
	if c.Flush.Workers < 0 {
		errs = append(errs, errors.New("flush.workers must not be negative"))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Options converts the config into constructor options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithLockTimeout(c.LockTimeout),
		WithLockRetryInterval(c.LockRetryInterval),
		WithPinLimit(c.PinLimitBytes),
		WithFlushBytesPerSec(c.Flush.BytesPerSec),
		WithFlushWorkers(c.Flush.Workers),
		WithLogger(c.logger()),
	}
	if c.Create {
		opts = append(opts, WithCreate(c.Size))
	}
	if c.Populate {
		opts = append(opts, WithPopulate())
	}
	if c.Flush.DirtyTracking {
		opts = append(opts, WithDirtyTracking())
	}
	if c.Flush.Interval > 0 {
		opts = append(opts, WithBackgroundFlush(c.Flush.Interval))
	}
	return opts
}

func (c *Config) logger() *Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return NoopLogger()
	}
	if strings.EqualFold(c.Log.Format, "json") {
		return NewJSONLogger(level)
	}
	return NewTextLogger(level)
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// OpenConfig opens the buffer described by cfg. Extra options are applied
// after the config's own.
func OpenConfig(cfg *Config, extra ...Option) (*AppendBuffer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Open(cfg.Path, append(cfg.Options(), extra...)...)
}
