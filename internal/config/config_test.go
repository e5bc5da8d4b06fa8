package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("FACESWAP_TEST_DB_PASSWORD", "s3cret")

	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
				assert.Equal(t, "localhost", cfg.Storage.Database.Host)
				assert.Equal(t, "faceswap_db", cfg.Storage.Database.Database)
				assert.Equal(t, "s3cret", cfg.Storage.Database.Password)
				assert.Equal(t, 15*time.Second, cfg.Images.DownloadTimeout)
				assert.Equal(t, 2*time.Minute, cfg.Worker.JobTimeout)
				assert.Equal(t, DispatchRabbitMQ, cfg.Dispatch.Mode)
				assert.Equal(t, "faceswap_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "faceswap_jobs", cfg.RabbitMQ.Queue.Name)
				assert.Equal(t, "face-swap-service", cfg.App.Name)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("testdata/minimal.yaml")
	require.NoError(t, err)

	assert.Equal(t, "face-swap-service", cfg.App.Name)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, DispatchLocal, cfg.Dispatch.Mode)
	assert.Equal(t, "static/input", cfg.Images.InputDir)
	assert.Equal(t, "static/output", cfg.Images.OutputDir)
	assert.Equal(t, 15*time.Second, cfg.Images.DownloadTimeout)
	assert.Equal(t, int64(20<<20), cfg.Images.MaxDownloadBytes)
	assert.Empty(t, cfg.Images.PublicBaseURL)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Zero(t, cfg.Worker.JobTimeout)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 4, cfg.RabbitMQ.Consumer.PrefetchCount)
	assert.Equal(t, 0.25, cfg.Composer.Feather)

	require.NoError(t, cfg.Validate())
}

func TestResolvePath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/config.yaml")
		assert.Equal(t, "/flag/config.yaml", ResolvePath("/flag/config.yaml", "default.yaml"))
	})

	t.Run("env beats fallback", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/env/config.yaml")
		assert.Equal(t, "/env/config.yaml", ResolvePath("", "default.yaml"))
	})

	t.Run("fallback", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		assert.Equal(t, "default.yaml", ResolvePath("", "default.yaml"))
	})
}

// validConfig returns a defaulted config that passes Validate
func validConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func withRabbitMQ(c *Config) {
	c.Dispatch.Mode = DispatchRabbitMQ
	c.Storage.Driver = DriverSQLite
	c.Storage.Database.Database = "/var/lib/faceswap/jobs.db"
	c.RabbitMQ.Host = "localhost"
	c.RabbitMQ.Exchange.Name = "faceswap_exchange"
	c.RabbitMQ.Queue.Name = "faceswap_jobs"
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errString string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:   "valid rabbitmq dispatch",
			mutate: withRabbitMQ,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = -1 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "unknown logging format",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantErr:   true,
			errString: "invalid logging format",
		},
		{
			name:      "unknown storage driver",
			mutate:    func(c *Config) { c.Storage.Driver = "mongo" },
			wantErr:   true,
			errString: "invalid storage driver",
		},
		{
			name: "empty database host",
			mutate: func(c *Config) {
				c.Storage.Driver = DriverPostgres
				c.Storage.Database.Port = 5432
				c.Storage.Database.Database = "faceswap_db"
			},
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name: "empty sqlite path",
			mutate: func(c *Config) {
				c.Storage.Driver = DriverSQLite
			},
			wantErr:   true,
			errString: "sqlite database path is required",
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "negative job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = -time.Second },
			wantErr:   true,
			errString: "worker job_timeout must not be negative",
		},
		{
			name:      "feather out of range",
			mutate:    func(c *Config) { c.Composer.Feather = 1 },
			wantErr:   true,
			errString: "invalid composer feather",
		},
		{
			name:      "unknown dispatch mode",
			mutate:    func(c *Config) { c.Dispatch.Mode = "kafka" },
			wantErr:   true,
			errString: "invalid dispatch mode",
		},
		{
			name: "rabbitmq dispatch with memory store",
			mutate: func(c *Config) {
				withRabbitMQ(c)
				c.Storage.Driver = DriverMemory
			},
			wantErr:   true,
			errString: "requires a shared SQL store",
		},
		{
			name: "empty rabbitmq host",
			mutate: func(c *Config) {
				withRabbitMQ(c)
				c.RabbitMQ.Host = ""
			},
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name: "empty exchange name",
			mutate: func(c *Config) {
				withRabbitMQ(c)
				c.RabbitMQ.Exchange.Name = ""
			},
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name: "empty queue name",
			mutate: func(c *Config) {
				withRabbitMQ(c)
				c.RabbitMQ.Queue.Name = ""
			},
			wantErr:   true,
			errString: "rabbitmq queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	t.Run("memory store rejected", func(t *testing.T) {
		err := validConfig().ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker requires a SQL store")
	})

	t.Run("rabbitmq settings required", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.Driver = DriverSQLite
		cfg.Storage.Database.Database = "jobs.db"
		err := cfg.ValidateWorkerConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rabbitmq host is required")
	})

	t.Run("valid", func(t *testing.T) {
		cfg := validConfig()
		withRabbitMQ(cfg)
		require.NoError(t, cfg.ValidateWorkerConfig())
	})
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with missing database", func(t *testing.T) {
		cfg, err := Load("testdata/missing_database.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database name is required")
	})
}

func TestConfig_ClientConfigs(t *testing.T) {
	cfg := validConfig()
	withRabbitMQ(cfg)
	cfg.RabbitMQ.RoutingKey = "faceswap.job"

	db := cfg.DatabaseClientConfig()
	assert.Equal(t, DriverSQLite, db.Driver)
	assert.Equal(t, "/var/lib/faceswap/jobs.db", db.Database)

	mq := cfg.RabbitMQClientConfig()
	assert.Equal(t, "faceswap_exchange", mq.ExchangeName)
	assert.Equal(t, "faceswap_jobs", mq.QueueName)
	assert.Equal(t, "faceswap.job", mq.RoutingKey)
	assert.Equal(t, 5672, mq.Port)
	assert.Equal(t, 3, mq.PublishRetries)

	opts := cfg.DetectorOptions()
	assert.Equal(t, cfg.Composer.MinQuality, opts.MinQuality)
	assert.Equal(t, 20, opts.MinSize)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "console", lc.Format)
}

func TestPortConstants(t *testing.T) {
	assert.Equal(t, 1, MinPort)
	assert.Equal(t, 65535, MaxPort)
}
