package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateLimit       float64       `yaml:"rate_limit" default:"2"`
		RateBurst       int           `yaml:"rate_burst" default:"5"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	KeyZones  KeyZones `yaml:"keyzones"`
	Sequencer struct {
		Backend string `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
	} `yaml:"sequencer"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"keyzones"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		EventsTopic  string   `yaml:"events_topic" default:"keyzones.batches"`
		RefreshTopic string   `yaml:"refresh_topic" default:"keyzones.refresh"`
		LogTopic     string   `yaml:"log_topic" default:"keyzones.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Consumer     struct {
			GroupID    string        `yaml:"group_id" default:"keyzones"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"market"`
		CandlesTable     string        `yaml:"candles_table" default:"candles"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

// KeyZones configures the detector invocation and its scratch space.
// Relative paths are resolved against InstallDir.
type KeyZones struct {
	InstallDir           string        `yaml:"install_dir"`
	Interpreter          string        `yaml:"interpreter" default:"python3" validate:"required"`
	ScriptPath           string        `yaml:"script_path" default:"python/keyzones/levels.py" validate:"required"`
	DataPath             string        `yaml:"data_path" default:"data" validate:"required"`
	ScratchPath          string        `yaml:"scratch_path" default:"python/keyzones/temp" validate:"required"`
	DateLayout           string        `yaml:"date_layout" default:"2006-01-02" validate:"required"`
	ZoneSizePercent      float64       `yaml:"zone_size_percent" default:"3" validate:"gt=0,lte=100"`
	MergeDistancePercent float64       `yaml:"merge_distance_percent" default:"2" validate:"gt=0,lte=100"`
	Workers              int           `yaml:"workers" default:"4" validate:"gte=1,lte=64"`
	DetectorTimeout      time.Duration `yaml:"detector_timeout" default:"60s"`
	MergeStderr          bool          `yaml:"merge_stderr"`
	PreflightCandles     bool          `yaml:"preflight_candles" default:"true"`
	ClearOnShutdown      bool          `yaml:"clear_on_shutdown" default:"true"`
}

var validate = validator.New()

// Default returns a configuration populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	c.resolvePaths()
	return &c
}

// Load reads and parses a YAML configuration file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, and then applies
// environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KEYZONES_INSTALL_DIR"); v != "" {
		c.KeyZones.InstallDir = v
	}
	if v := os.Getenv("KEYZONES_INTERPRETER"); v != "" {
		c.KeyZones.Interpreter = v
	}
	if v := os.Getenv("KEYZONES_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KeyZones.Workers = n
		}
	}
	if v := os.Getenv("SEQUENCER_BACKEND"); v != "" {
		c.Sequencer.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if n, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = n
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}

	c.resolvePaths()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.KeyZones.DetectorTimeout < 0 {
		return fmt.Errorf("keyzones.detector_timeout must not be negative")
	}
	return nil
}

// RedisAddr returns host:port for the redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// ScriptFile is the absolute path of the detector script.
func (k KeyZones) ScriptFile() string { return k.resolve(k.ScriptPath) }

// DataDir is the absolute path of the candle data root.
func (k KeyZones) DataDir() string { return k.resolve(k.DataPath) }

// ScratchDir is the absolute path of the artifact directory.
func (k KeyZones) ScratchDir() string { return k.resolve(k.ScratchPath) }

func (k KeyZones) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(k.InstallDir, p)
}

func (c *Config) resolvePaths() {
	if c.KeyZones.InstallDir != "" {
		return
	}
	if exe, err := os.Executable(); err == nil {
		c.KeyZones.InstallDir = filepath.Dir(exe)
		return
	}
	if wd, err := os.Getwd(); err == nil {
		c.KeyZones.InstallDir = wd
	}
}
