package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/face-swap-service/internal/faceswap"
	"github.com/cuongbtq/face-swap-service/shared/database"
	"github.com/cuongbtq/face-swap-service/shared/logger"
	"github.com/cuongbtq/face-swap-service/shared/rabbitmq"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// EnvConfigPath overrides the config file location when no -config flag is given
	EnvConfigPath = "FACESWAP_CONFIG_PATH"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = database.DriverPostgres
	DriverSQLite   = database.DriverSQLite
)

// Dispatch modes
const (
	DispatchLocal    = "local"
	DispatchRabbitMQ = "rabbitmq"
)

// Config represents the complete application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
	Images   ImagesConfig   `yaml:"images"`
	Worker   WorkerConfig   `yaml:"worker"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Composer ComposerConfig `yaml:"composer"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
}

// StorageConfig selects the job store backend
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds SQL connection configuration. For sqlite, Database is the file path.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// ImagesConfig holds input/output image settings
type ImagesConfig struct {
	InputDir         string        `yaml:"input_dir"`
	OutputDir        string        `yaml:"output_dir"`
	DownloadTimeout  time.Duration `yaml:"download_timeout"`
	MaxDownloadBytes int64         `yaml:"max_download_bytes"`
	PublicBaseURL    string        `yaml:"public_base_url"`
}

// WorkerConfig holds worker pool configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	QueueSize       int           `yaml:"queue_size"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DispatchConfig selects how accepted jobs reach the worker pool
type DispatchConfig struct {
	Mode string `yaml:"mode"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Durable bool   `yaml:"durable"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name    string `yaml:"name"`
	Durable bool   `yaml:"durable"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int    `yaml:"prefetch_count"`
	Tag           string `yaml:"tag"`
}

// ComposerConfig holds face detection and blending settings
type ComposerConfig struct {
	CascadePath  string  `yaml:"cascade_path"`
	MinQuality   float32 `yaml:"min_quality"`
	MinFaceSize  int     `yaml:"min_face_size"`
	MaxFaceSize  int     `yaml:"max_face_size"`
	ShiftFactor  float64 `yaml:"shift_factor"`
	ScaleFactor  float64 `yaml:"scale_factor"`
	IoUThreshold float64 `yaml:"iou_threshold"`
	Feather      float64 `yaml:"feather"`
}

// ResolvePath picks the config file: the -config flag, then FACESWAP_CONFIG_PATH, then fallback
func ResolvePath(flagPath, fallback string) string {
	if flagPath != "" {
		return flagPath
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return fallback
}

// Load reads and parses the configuration file. ${VAR} references are
// expanded from the environment before parsing and defaults are applied after.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "face-swap-service"
	}

	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	// downloads run inside the request, so the write deadline must outlast them
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 45 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Storage.Driver == DriverPostgres {
		if c.Storage.Database.Port == 0 {
			c.Storage.Database.Port = 5432
		}
		if c.Storage.Database.SSLMode == "" {
			c.Storage.Database.SSLMode = "disable"
		}
	}

	if c.Images.InputDir == "" {
		c.Images.InputDir = "static/input"
	}
	if c.Images.OutputDir == "" {
		c.Images.OutputDir = "static/output"
	}
	if c.Images.DownloadTimeout == 0 {
		c.Images.DownloadTimeout = 15 * time.Second
	}
	if c.Images.MaxDownloadBytes == 0 {
		c.Images.MaxDownloadBytes = 20 << 20
	}

	if c.Worker.Concurrency == 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = 64
	}
	if c.Worker.ShutdownTimeout == 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}

	if c.Dispatch.Mode == "" {
		c.Dispatch.Mode = DispatchLocal
	}

	if c.RabbitMQ.Port == 0 {
		c.RabbitMQ.Port = 5672
	}
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Connection.RetryAttempts == 0 {
		c.RabbitMQ.Connection.RetryAttempts = 5
	}
	if c.RabbitMQ.Connection.RetryInterval == 0 {
		c.RabbitMQ.Connection.RetryInterval = 2 * time.Second
	}
	if c.RabbitMQ.Connection.Heartbeat == 0 {
		c.RabbitMQ.Connection.Heartbeat = 10 * time.Second
	}
	if c.RabbitMQ.Publish.RetryAttempts == 0 {
		c.RabbitMQ.Publish.RetryAttempts = 3
	}
	if c.RabbitMQ.Publish.RetryInterval == 0 {
		c.RabbitMQ.Publish.RetryInterval = 500 * time.Millisecond
	}
	if c.RabbitMQ.Publish.BackoffMultiplier == 0 {
		c.RabbitMQ.Publish.BackoffMultiplier = 2.0
	}
	if c.RabbitMQ.Consumer.PrefetchCount == 0 {
		c.RabbitMQ.Consumer.PrefetchCount = c.Worker.Concurrency
	}

	defaults := faceswap.DefaultDetectorOptions()
	if c.Composer.CascadePath == "" {
		c.Composer.CascadePath = "cascade/facefinder"
	}
	if c.Composer.MinQuality == 0 {
		c.Composer.MinQuality = defaults.MinQuality
	}
	if c.Composer.MinFaceSize == 0 {
		c.Composer.MinFaceSize = defaults.MinSize
	}
	if c.Composer.ShiftFactor == 0 {
		c.Composer.ShiftFactor = defaults.ShiftFactor
	}
	if c.Composer.ScaleFactor == 0 {
		c.Composer.ScaleFactor = defaults.ScaleFactor
	}
	if c.Composer.IoUThreshold == 0 {
		c.Composer.IoUThreshold = defaults.IoUThreshold
	}
	if c.Composer.Feather == 0 {
		c.Composer.Feather = 0.25
	}
}

// Validate checks the settings shared by the API service and the worker
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format: %q (must be console or json)", c.Logging.Format)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.Images.InputDir == "" || c.Images.OutputDir == "" {
		return fmt.Errorf("images input_dir and output_dir are required")
	}

	if c.Images.DownloadTimeout < 0 {
		return fmt.Errorf("images download_timeout must not be negative")
	}

	if c.Images.MaxDownloadBytes < 0 {
		return fmt.Errorf("images max_download_bytes must not be negative")
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker queue_size must not be negative")
	}

	if c.Worker.JobTimeout < 0 {
		return fmt.Errorf("worker job_timeout must not be negative")
	}

	if c.Composer.CascadePath == "" {
		return fmt.Errorf("composer cascade_path is required")
	}

	if c.Composer.Feather < 0 || c.Composer.Feather >= 1 {
		return fmt.Errorf("invalid composer feather: %v (must be in [0, 1))", c.Composer.Feather)
	}

	switch c.Dispatch.Mode {
	case DispatchLocal:
	case DispatchRabbitMQ:
		if c.Storage.Driver == DriverMemory {
			return fmt.Errorf("dispatch mode %q requires a shared SQL store", DispatchRabbitMQ)
		}
		return c.validateRabbitMQ()
	default:
		return fmt.Errorf("invalid dispatch mode: %q (must be %s or %s)", c.Dispatch.Mode, DispatchLocal, DispatchRabbitMQ)
	}

	return nil
}

// ValidateWorkerConfig checks the settings the standalone worker needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Storage.Driver == DriverMemory {
		return fmt.Errorf("worker requires a SQL store, got driver %q", c.Storage.Driver)
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	return c.validateRabbitMQ()
}

func (c *Config) validateStorage() error {
	db := c.Storage.Database

	switch c.Storage.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if db.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if db.Port < MinPort || db.Port > MaxPort {
			return fmt.Errorf("invalid database port: %d (must be between %d and %d)", db.Port, MinPort, MaxPort)
		}
		if db.Database == "" {
			return fmt.Errorf("database name is required")
		}
		return nil
	case DriverSQLite:
		if db.Database == "" {
			return fmt.Errorf("sqlite database path is required")
		}
		return nil
	default:
		return fmt.Errorf("invalid storage driver: %q", c.Storage.Driver)
	}
}

func (c *Config) validateRabbitMQ() error {
	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	return nil
}

// LoggerConfig converts the logging section for shared/logger
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:        c.Logging.Level,
		Format:       c.Logging.Format,
		Output:       c.Logging.Output,
		EnableSource: c.Logging.EnableCaller,
		TimeFormat:   c.Logging.TimeFormat,
	}
}

// DatabaseClientConfig converts the storage section for shared/database
func (c *Config) DatabaseClientConfig() *database.Config {
	db := c.Storage.Database
	return &database.Config{
		Driver:          c.Storage.Driver,
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}
}

// RabbitMQClientConfig converts the rabbitmq section for shared/rabbitmq
func (c *Config) RabbitMQClientConfig() *rabbitmq.Config {
	r := c.RabbitMQ
	routingKey := r.RoutingKey
	if routingKey == "" {
		routingKey = r.Queue.Name
	}
	return &rabbitmq.Config{
		Host:               r.Host,
		Port:               r.Port,
		User:               r.User,
		Password:           r.Password,
		VHost:              r.VHost,
		ExchangeName:       r.Exchange.Name,
		ExchangeType:       r.Exchange.Type,
		ExchangeDurable:    r.Exchange.Durable,
		QueueName:          r.Queue.Name,
		QueueDurable:       r.Queue.Durable,
		RoutingKey:         routingKey,
		RetryAttempts:      r.Connection.RetryAttempts,
		RetryInterval:      r.Connection.RetryInterval,
		Heartbeat:          r.Connection.Heartbeat,
		PrefetchCount:      r.Consumer.PrefetchCount,
		PublishRetries:     r.Publish.RetryAttempts,
		PublishRetryDelay:  r.Publish.RetryInterval,
		PublishBackoffMult: r.Publish.BackoffMultiplier,
	}
}

// DetectorOptions converts the composer section for the pigo detector
func (c *Config) DetectorOptions() faceswap.DetectorOptions {
	return faceswap.DetectorOptions{
		MinSize:      c.Composer.MinFaceSize,
		MaxSize:      c.Composer.MaxFaceSize,
		ShiftFactor:  c.Composer.ShiftFactor,
		ScaleFactor:  c.Composer.ScaleFactor,
		IoUThreshold: c.Composer.IoUThreshold,
		MinQuality:   c.Composer.MinQuality,
	}
}
