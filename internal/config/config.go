package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// SensorConfig holds the flow-tracking and capture settings of ns-sensor.
type SensorConfig struct {
	Interface      string `yaml:"interface"`
	BPFFilter      string `yaml:"bpf_filter"`
	SnapshotLen    int32  `yaml:"snapshot_len"`
	Promiscuous    bool   `yaml:"promiscuous"`
	FlowTimeout    string `yaml:"flow_timeout"`
	SweepInterval  string `yaml:"sweep_interval"`
	TimeWindow     string `yaml:"time_window"`
	HostWindowSize int    `yaml:"host_window_size"`
	NumSenders     int    `yaml:"num_senders"`
	QueueSize      int    `yaml:"queue_size"`
	CalibrationCSV string `yaml:"calibration_csv"`
}

// SecurityConfig names the key material for the secure envelope.
type SecurityConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Suite          string `yaml:"suite"` // "aes-256-gcm" or "chacha20-poly1305"
	SymmetricKey   string `yaml:"symmetric_key"`
	PrivateKeyPath string `yaml:"private_key"`
	PublicKeyPath  string `yaml:"public_key"`
}

// TransportConfig selects how sensors reach the analyzer.
type TransportConfig struct {
	Type        string `yaml:"type"` // "http" or "nats"
	AnalyzerURL string `yaml:"analyzer_url"`
	Timeout     string `yaml:"timeout"`
}

// NATSConfig holds the NATS connection details shared by sensor and analyzer.
type NATSConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Workers int    `yaml:"workers"` // concurrent message handlers on the analyzer
}

// AnalyzerConfig holds the settings of the ns-analyzer HTTP service.
type AnalyzerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	SubscribeNATS bool   `yaml:"subscribe_nats"`
	MaxBodyBytes  int64  `yaml:"max_body_bytes"`
}

// ModelArtifacts locates a feature contract and a trained model.
type ModelArtifacts struct {
	Contract string `yaml:"contract"`
	Model    string `yaml:"model"`
}

// ClassifierConfig holds the artifacts of both classification stages.
type ClassifierConfig struct {
	Primary   ModelArtifacts `yaml:"primary"`
	Secondary ModelArtifacts `yaml:"secondary"`
}

// MongoConfig holds the document store connection.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// StoreConfig selects and configures the escalation store.
type StoreConfig struct {
	Type      string      `yaml:"type"` // "memory" or "mongo"
	Retention string      `yaml:"retention"`
	Lease     string      `yaml:"lease"`
	Mongo     MongoConfig `yaml:"mongo"`
}

// ReviewerConfig holds the escalation reviewer loop settings.
type ReviewerConfig struct {
	Interval         string `yaml:"interval"`
	Backoff          string `yaml:"backoff"`
	BatchSize        int    `yaml:"batch_size"`
	ActionTag        string `yaml:"action_tag"`
	ReconcileOnStart bool   `yaml:"reconcile_on_start"`
}

// EnforcementConfig selects the firewall gateway.
type EnforcementConfig struct {
	Type  string `yaml:"type"` // "nftables" or "dryrun"
	Table string `yaml:"table"`
	Chain string `yaml:"chain"`
}

// ClickHouseConfig holds the connection details for the analysis archive.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ArchiveConfig selects where classified events are archived for analytics.
type ArchiveConfig struct {
	Type          string `yaml:"type"` // "none", "clickhouse" or "gob"
	Path          string `yaml:"path"` // root directory of the gob archive
	FlushInterval string `yaml:"flush_interval"`
	MaxPending    int    `yaml:"max_pending"`
}

// SMTPConfig holds the mail relay used for incident notifications.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

// AIConfig holds the OpenAI-compatible endpoint used to summarize incidents.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// AlerterConfig controls consolidated incident notifications.
type AlerterConfig struct {
	Enabled       bool   `yaml:"enabled"`
	CheckInterval string `yaml:"check_interval"`
}

// MetricsConfig controls the Prometheus listener of the non-HTTP binaries.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Security    SecurityConfig    `yaml:"security"`
	Transport   TransportConfig   `yaml:"transport"`
	NATS        NATSConfig        `yaml:"nats"`
	Analyzer    AnalyzerConfig    `yaml:"analyzer"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Store       StoreConfig       `yaml:"store"`
	Reviewer    ReviewerConfig    `yaml:"reviewer"`
	Enforcement EnforcementConfig `yaml:"enforcement"`
	Archive     ArchiveConfig     `yaml:"archive"`
	ClickHouse  ClickHouseConfig  `yaml:"clickhouse"`
	Alerter     AlerterConfig     `yaml:"alerter"`
	SMTP        SMTPConfig        `yaml:"smtp"`
	AI          AIConfig          `yaml:"ai"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Default returns a configuration populated with the built-in defaults.
// Values present in the YAML file override these.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Sensor: SensorConfig{
			BPFFilter:      "tcp or udp",
			SnapshotLen:    1600,
			Promiscuous:    true,
			FlowTimeout:    "60s",
			SweepInterval:  "10s",
			TimeWindow:     "2s",
			HostWindowSize: 100,
			NumSenders:     4,
			QueueSize:      1024,
		},
		Security: SecurityConfig{
			Enabled:        true,
			Suite:          "aes-256-gcm",
			SymmetricKey:   "keys/aes_secret.key",
			PrivateKeyPath: "keys/sensor_private.pem",
			PublicKeyPath:  "keys/sensor_public.pem",
		},
		Transport: TransportConfig{
			Type:        "http",
			AnalyzerURL: "http://127.0.0.1:5000/api/v1/analyze",
			Timeout:     "5s",
		},
		NATS:     NATSConfig{URL: "nats://127.0.0.1:4222", Subject: "gons.flows.sealed", Workers: 8},
		Analyzer: AnalyzerConfig{ListenAddr: ":5000", MaxBodyBytes: 1 << 20},
		Classifier: ClassifierConfig{
			Primary:   ModelArtifacts{Contract: "configs/contract.yaml", Model: "models/primary.json"},
			Secondary: ModelArtifacts{Contract: "configs/contract.yaml", Model: "models/secondary.json"},
		},
		Store: StoreConfig{
			Type:      "memory",
			Retention: "24h",
			Lease:     "2m",
			Mongo:     MongoConfig{URI: "mongodb://127.0.0.1:27017", Database: "gonetshield"},
		},
		Reviewer: ReviewerConfig{
			Interval:         "30s",
			Backoff:          "10s",
			BatchSize:        50,
			ActionTag:        "blocked",
			ReconcileOnStart: true,
		},
		Enforcement: EnforcementConfig{Type: "dryrun", Table: "gonetshield", Chain: "input_block"},
		Archive:     ArchiveConfig{Type: "none", Path: "archive", FlushInterval: "10s", MaxPending: 10000},
		ClickHouse:  ClickHouseConfig{Host: "127.0.0.1", Port: 9000, Database: "default"},
		Alerter:     AlerterConfig{CheckInterval: "1m"},
		AI:          AIConfig{Model: "gpt-4o-mini"},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerations and that every duration string parses.
func (c *Config) Validate() error {
	durations := map[string]string{
		"sensor.flow_timeout":    c.Sensor.FlowTimeout,
		"sensor.sweep_interval":  c.Sensor.SweepInterval,
		"sensor.time_window":     c.Sensor.TimeWindow,
		"transport.timeout":      c.Transport.Timeout,
		"store.retention":        c.Store.Retention,
		"store.lease":            c.Store.Lease,
		"reviewer.interval":      c.Reviewer.Interval,
		"reviewer.backoff":       c.Reviewer.Backoff,
		"archive.flush_interval": c.Archive.FlushInterval,
		"alerter.check_interval": c.Alerter.CheckInterval,
	}
	for name, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	switch c.Transport.Type {
	case "http", "nats":
	default:
		return fmt.Errorf("unknown transport type: '%s'", c.Transport.Type)
	}
	switch c.Store.Type {
	case "memory", "mongo":
	default:
		return fmt.Errorf("unknown store type: '%s'", c.Store.Type)
	}
	switch c.Enforcement.Type {
	case "nftables", "dryrun":
	default:
		return fmt.Errorf("unknown enforcement type: '%s'", c.Enforcement.Type)
	}
	switch c.Archive.Type {
	case "none", "clickhouse", "gob":
	default:
		return fmt.Errorf("unknown archive type: '%s'", c.Archive.Type)
	}
	switch c.Security.Suite {
	case "aes-256-gcm", "chacha20-poly1305":
	default:
		return fmt.Errorf("unknown cipher suite: '%s'", c.Security.Suite)
	}
	if c.Sensor.HostWindowSize <= 0 {
		return fmt.Errorf("sensor.host_window_size must be positive")
	}
	if c.NATS.Workers <= 0 {
		return fmt.Errorf("nats.workers must be positive")
	}
	if c.Reviewer.BatchSize <= 0 {
		return fmt.Errorf("reviewer.batch_size must be positive")
	}
	return nil
}

// Duration parses a duration string that Validate has already accepted.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
