package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Cache         CacheConfig         `yaml:"cache"`
	Memory        MemoryConfig        `yaml:"memory"`
	FileCache     FileCacheConfig     `yaml:"file_cache"`
	Translator    TranslatorConfig    `yaml:"translator"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CacheConfig bounds the three routed tiers and sets the promotion
// thresholds. Thresholds are strict: a block promotes when its access
// count exceeds (not reaches) the configured value.
type CacheConfig struct {
	HotMaxBytes        ByteSize `yaml:"hot_max_bytes"`
	WarmMaxBytes       ByteSize `yaml:"warm_max_bytes"`
	CompressedMaxBytes ByteSize `yaml:"compressed_max_bytes"`
	WarmPromoteHits    int      `yaml:"warm_promote_hits"`
	ColdPromoteHits    int      `yaml:"cold_promote_hits"`
}

type MemoryConfig struct {
	Budget              ByteSize `yaml:"budget"`
	DefaultSizeEstimate ByteSize `yaml:"default_size_estimate"`
}

type FileCacheConfig struct {
	Backend      string   `yaml:"backend"` // "disk" or "bolt"
	BoltPath     string   `yaml:"bolt_path"`
	OpenTimeout  Duration `yaml:"open_timeout"`
	WriteThrough bool     `yaml:"write_through"`
}

type TranslatorConfig struct {
	PointerBase    uint64 `yaml:"pointer_base"`
	PointerStride  uint64 `yaml:"pointer_stride"`
	DescriptorBase uint64 `yaml:"descriptor_base"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Cache.HotMaxBytes <= 0 {
		return fmt.Errorf("cache.hot_max_bytes must be > 0")
	}
	if c.Cache.WarmMaxBytes <= 0 {
		return fmt.Errorf("cache.warm_max_bytes must be > 0")
	}
	if c.Cache.CompressedMaxBytes <= 0 {
		return fmt.Errorf("cache.compressed_max_bytes must be > 0")
	}
	if c.Cache.WarmPromoteHits < 0 || c.Cache.ColdPromoteHits < 0 {
		return fmt.Errorf("promotion thresholds must be >= 0")
	}

	if c.Memory.Budget <= 0 {
		return fmt.Errorf("memory.budget must be > 0")
	}
	if c.Memory.DefaultSizeEstimate <= 0 {
		return fmt.Errorf("memory.default_size_estimate must be > 0")
	}

	switch c.FileCache.Backend {
	case "disk":
	case "bolt":
		if c.FileCache.BoltPath == "" {
			return fmt.Errorf("file_cache.bolt_path is required for the bolt backend")
		}
	default:
		return fmt.Errorf("file_cache.backend must be \"disk\" or \"bolt\", got %q", c.FileCache.Backend)
	}

	if c.Translator.PointerStride == 0 {
		return fmt.Errorf("translator.pointer_stride must be > 0")
	}

	return nil
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		// Try as integer
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "TB":
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
