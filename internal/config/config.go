// Package config handles loading and parsing of objio configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionType selects the IOManager backend.
type ConnectionType string

const (
	AWS            ConnectionType = "aws"
	Azure          ConnectionType = "azure"
	AzurePresigned ConnectionType = "azure_presigned"
	GoogleStorage  ConnectionType = "gcs"
	HTTP           ConnectionType = "http"
	InMemory       ConnectionType = "inmemory"
	File           ConnectionType = "file"
)

// Config is the top-level configuration for objio.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Engine     EngineConfig     `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ConnectionConfig names the backend and carries the settings of each.
// Only the block matching Type is read.
type ConnectionConfig struct {
	Type           ConnectionType       `yaml:"type"`
	AWS            AWSConfig            `yaml:"aws"`
	Azure          AzureConfig          `yaml:"azure"`
	AzurePresigned AzurePresignedConfig `yaml:"azure_presigned"`
	GCS            GCSConfig            `yaml:"gcs"`
	HTTP           HTTPConfig           `yaml:"http"`
	InMemory       InMemoryConfig       `yaml:"inmemory"`
	File           FileConfig           `yaml:"file"`
}

// AWSConfig holds settings for S3-compatible endpoints.
type AWSConfig struct {
	Bucket string `yaml:"bucket"`
	// Prefix is prepended to every object name, without a trailing slash.
	Prefix string `yaml:"prefix"`
	Region string `yaml:"region"`
	// Endpoint overrides the virtual-hosted AWS address, e.g.
	// "http://localhost:9000" for an S3-compatible server. Requests to a
	// custom endpoint use path-style addressing.
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	// UseDefaultChain resolves credentials through the AWS SDK default
	// chain (environment, shared config, instance role) when no static
	// keys are set.
	UseDefaultChain bool `yaml:"use_default_chain"`
}

// AzureConfig holds settings for Azure Blob storage with Shared Key auth.
type AzureConfig struct {
	// ConnectionString, when set, supplies protocol, account, key and
	// endpoint suffix.
	ConnectionString string `yaml:"connection_string"`
	AccountName      string `yaml:"account_name"`
	AccountKey       string `yaml:"account_key"`
	Container        string `yaml:"container"`
	Prefix           string `yaml:"prefix"`
	EndpointSuffix   string `yaml:"endpoint_suffix"`
	Protocol         string `yaml:"protocol"`
	// BlobEndpoint overrides the account URL, e.g. for Azurite.
	BlobEndpoint string `yaml:"blob_endpoint"`
}

// AzurePresignedConfig holds a container (or directory) URL with a SAS
// token in its query string.
type AzurePresignedConfig struct {
	BaseURL string `yaml:"base_url"`
}

// GCSConfig holds settings for Google Cloud Storage.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Project         string `yaml:"project"`
	CredentialsFile string `yaml:"credentials_file"`
	// Endpoint overrides the JSON API endpoint, e.g. for an emulator.
	// Requests to a custom endpoint are sent without authentication.
	Endpoint string `yaml:"endpoint"`
}

// HTTPConfig holds the base URL of a read-only HTTP object source. A
// query string on the URL is appended to every object address.
type HTTPConfig struct {
	URL string `yaml:"url"`
}

// InMemoryConfig holds settings for the in-process backend.
type InMemoryConfig struct {
	// SnapshotPath, when set, persists objects to a SQLite file on Close
	// and restores them on start.
	SnapshotPath string `yaml:"snapshot_path"`
}

// FileConfig holds settings for the directory-backed backend.
type FileConfig struct {
	RootDir string `yaml:"root_dir"`
}

// EngineConfig tunes the transfer engine.
type EngineConfig struct {
	ConcurrencyCap  int           `yaml:"concurrency_cap"`
	MaxAttempts     int           `yaml:"max_attempts"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
}

// LoggingConfig holds log/slog settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus collector registration.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads a YAML configuration file from the given path and returns
// a parsed Config with defaults applied. If the primary path fails, it
// falls back to objio.example.yaml in the same or parent directory.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		fallbackPaths := []string{
			filepath.Join(filepath.Dir(path), "objio.example.yaml"),
			filepath.Join(filepath.Dir(path), "..", "objio.example.yaml"),
		}
		var fallbackErr error
		for _, fp := range fallbackPaths {
			data, fallbackErr = os.ReadFile(fp)
			if fallbackErr == nil {
				break
			}
		}
		if fallbackErr != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// Default returns a Config with every default applied, selecting the
// in-memory backend.
func Default() *Config {
	cfg := defaultConfig()
	applyDefaults(cfg)
	return cfg
}

func defaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{
			Type: InMemory,
		},
		Engine: EngineConfig{
			ConcurrencyCap:  64,
			MaxAttempts:     4,
			TransferTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// applyDefaults fills in any fields that are still at their zero value
// after YAML unmarshaling.
func applyDefaults(cfg *Config) {
	if cfg.Connection.Type == "" {
		cfg.Connection.Type = InMemory
	}
	if cfg.Connection.AWS.Region == "" {
		cfg.Connection.AWS.Region = "us-east-1"
	}
	if cfg.Connection.Azure.EndpointSuffix == "" {
		cfg.Connection.Azure.EndpointSuffix = defaultEndpointSuffix
	}
	if cfg.Connection.Azure.Protocol == "" {
		cfg.Connection.Azure.Protocol = "https"
	}
	if cfg.Connection.File.RootDir == "" {
		cfg.Connection.File.RootDir = "./data/objects"
	}
	if cfg.Engine.ConcurrencyCap <= 0 {
		cfg.Engine.ConcurrencyCap = 64
	}
	if cfg.Engine.MaxAttempts <= 0 {
		cfg.Engine.MaxAttempts = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate reports the first missing setting required by the selected
// connection type.
func (c *Config) Validate() error {
	conn := c.Connection
	switch conn.Type {
	case AWS:
		if conn.AWS.Bucket == "" {
			return fmt.Errorf("connection.aws.bucket is required")
		}
	case Azure:
		if conn.Azure.Container == "" {
			return fmt.Errorf("connection.azure.container is required")
		}
		if conn.Azure.ConnectionString == "" && (conn.Azure.AccountName == "" || conn.Azure.AccountKey == "") {
			return fmt.Errorf("connection.azure needs connection_string or account_name and account_key")
		}
	case AzurePresigned:
		if conn.AzurePresigned.BaseURL == "" {
			return fmt.Errorf("connection.azure_presigned.base_url is required")
		}
	case GoogleStorage:
		if conn.GCS.Bucket == "" {
			return fmt.Errorf("connection.gcs.bucket is required")
		}
	case HTTP:
		if conn.HTTP.URL == "" {
			return fmt.Errorf("connection.http.url is required")
		}
	case InMemory, File:
	default:
		return fmt.Errorf("unknown connection type %q", conn.Type)
	}
	return nil
}
