package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ExtractConfig holds the pipeline settings: where captures come from, where
// outputs go, and the concurrency bounds.
type ExtractConfig struct {
	CaptureRoot      string `yaml:"capture_root"`
	OutputRoot       string `yaml:"output_root"`
	Windows          []int  `yaml:"windows"`
	NumWorkers       int    `yaml:"num_workers"`
	QueueCapacity    int    `yaml:"queue_capacity"`
	MaxFlowsPerChunk int    `yaml:"max_flows_per_chunk"`
}

// DecoderConfig holds the settings for the external tshark decoder.
type DecoderConfig struct {
	TsharkPath string   `yaml:"tshark_path"`
	ExtraArgs  []string `yaml:"extra_args"`
}

// ClickHouseConfig holds the connection settings for the optional row store.
type ClickHouseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Table    string `yaml:"table"`
}

// SinksConfig groups the optional row writers. The CSV sink is always on
// and needs no section of its own beyond extract.output_root.
type SinksConfig struct {
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// EventsConfig holds the optional NATS event publishing settings.
type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// APIConfig holds the settings for the qs-api server.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Extract ExtractConfig `yaml:"extract"`
	Decoder DecoderConfig `yaml:"decoder"`
	Sinks   SinksConfig   `yaml:"sinks"`
	Events  EventsConfig  `yaml:"events"`
	API     APIConfig     `yaml:"api"`
}

// LoadConfig reads the configuration from a YAML file, fills in defaults and
// validates the result.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if len(c.Extract.Windows) == 0 {
		c.Extract.Windows = []int{5, 10, 15, 20}
	}
	if c.Extract.OutputRoot == "" {
		c.Extract.OutputRoot = "output"
	}
	if c.Extract.NumWorkers <= 0 {
		c.Extract.NumWorkers = runtime.NumCPU()
	}
	if c.Extract.QueueCapacity == 0 {
		c.Extract.QueueCapacity = 4096
	}
	if c.Extract.MaxFlowsPerChunk == 0 {
		c.Extract.MaxFlowsPerChunk = 64
	}
	if c.Decoder.TsharkPath == "" {
		c.Decoder.TsharkPath = "tshark"
	}
	if c.Sinks.ClickHouse.Table == "" {
		c.Sinks.ClickHouse.Table = "feature_rows"
	}
	if c.Events.SubjectPrefix == "" {
		c.Events.SubjectPrefix = "quicsieve"
	}
	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
}

// Validate rejects configurations the pipeline cannot run with. The window
// list is fixed after startup: positive sizes, strictly ascending.
func (c *Config) Validate() error {
	if len(c.Extract.Windows) == 0 {
		return fmt.Errorf("extract.windows must not be empty")
	}
	prev := 0
	for _, w := range c.Extract.Windows {
		if w <= 0 {
			return fmt.Errorf("extract.windows contains non-positive size %d", w)
		}
		if w <= prev {
			return fmt.Errorf("extract.windows must be strictly ascending, got %d after %d", w, prev)
		}
		prev = w
	}
	if c.Extract.QueueCapacity < 1 {
		return fmt.Errorf("extract.queue_capacity must be at least 1")
	}
	if c.Extract.MaxFlowsPerChunk < 1 {
		return fmt.Errorf("extract.max_flows_per_chunk must be at least 1")
	}
	if c.Extract.NumWorkers < 1 {
		return fmt.Errorf("extract.num_workers must be at least 1")
	}
	return nil
}
