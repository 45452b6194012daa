// Package conf loads the Docbox process configuration from a YAML file
// plus environment overrides, in the teacher's viper struct-of-structs
// style.
package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	RootDB     DatabaseConfig
	Redis      RedisConfig
	S3         S3Config
	SQS        SQSConfig
	Log        LogConfig
	PDF        RPCConfig
	Office     RPCConfig
	Scraper    RPCConfig
	Processing ProcessingConfig
	Search     SearchConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Env identifies the deployment environment used for tenant lookups
	// (matches the Tenant.env column).
	Env string `mapstructure:"env"`
}

// DatabaseConfig describes the root database that holds the tenant
// registry and root migration log. Per-tenant databases are resolved at
// runtime via the tenant registry and reuse this config's connection-pool
// settings and connection details, with only DBName substituted per tenant.
type DatabaseConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	User                 string        `mapstructure:"user"`
	Password             string        `mapstructure:"password"`
	DBName               string        `mapstructure:"dbname"`
	SSLMode              string        `mapstructure:"sslmode"`
	MaxIdleConns         int           `mapstructure:"maxidleconns"`
	MaxOpenConns         int           `mapstructure:"maxopenconns"`
	ConnMaxLifetime      time.Duration `mapstructure:"connmaxlifetime"`
	ConnMaxIdleTime      time.Duration `mapstructure:"connmaxidletime"`
	LogLevel             string        `mapstructure:"loglevel"`
	SlowThreshold        time.Duration `mapstructure:"slowthreshold"`
	AutoMigrate          bool          `mapstructure:"automigrate"`
	PreferSimpleProtocol bool          `mapstructure:"prefersimpleprotocol"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// S3Config configures the aws-sdk-go-v2 client used to build per-tenant
// bucket adapters. Region/credentials are resolved once at the process
// level; the bucket itself is per-tenant (see internal/tenant).
type S3Config struct {
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"` // non-empty for S3-compatible endpoints (e.g. MinIO)
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
}

// SQSConfig configures the per-tenant event queue poller (§4.6). The
// actual queue URL comes from the tenant registry; this section only
// carries poll tuning.
type SQSConfig struct {
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	VisibilityTimeout int32         `mapstructure:"visibility_timeout_seconds"`
	MaxMessages       int32         `mapstructure:"max_messages"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

// RPCConfig describes one of the three external processors named in
// spec.md §6 (office converter, PDF extractor, web scraper). Each is a
// pure RPC collaborator; Docbox Core never implements their logic, only
// the client stub and (for PDF) an optional local backend.
type RPCConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	// UseLocal selects the in-process go-fitz backend instead of the RPC
	// client. Only meaningful for PDF.
	UseLocal bool `mapstructure:"use_local"`
}

type ProcessingConfig struct {
	Workers           int   `mapstructure:"workers"`
	QueueSize         int   `mapstructure:"queue_size"`
	IngestWorkers     int   `mapstructure:"ingest_workers"`
	IngestQueueSize   int   `mapstructure:"ingest_queue_size"`
	SmallThumbnailPx  int   `mapstructure:"small_thumbnail_px"`
	LargeThumbnailPx  int   `mapstructure:"large_thumbnail_px"`
	TextChunkBytes    int   `mapstructure:"text_chunk_bytes"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

// SearchConfig selects the search.Backend a tenant's IndexName resolves
// against (§4.5). Postgres needs no further configuration; Typesense
// needs a shared cluster URL and key, with the tenant's IndexName used
// as its collection name.
type SearchConfig struct {
	Backend      string `mapstructure:"backend"` // "postgres" or "typesense"
	TypesenseURL string `mapstructure:"typesense_url"`
	TypesenseKey string `mapstructure:"typesense_key"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
