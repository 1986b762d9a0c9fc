package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

type DatabaseConfig struct {
	Driver             string        `mapstructure:"driver"` // postgres, mysql or sqlite
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	Name               string        `mapstructure:"name"`
	SSLMode            string        `mapstructure:"ssl_mode"`
	Path               string        `mapstructure:"path"`
	MaxOpenConns       int           `mapstructure:"max_open_conns"`
	MaxIdleConns       int           `mapstructure:"max_idle_conns"`
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	AutoMigrate        bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig configures both tiers of the execution state cache.
type CacheConfig struct {
	LocalMaxEntries      int           `mapstructure:"local_max_entries"`
	LocalTTL             time.Duration `mapstructure:"local_ttl"`
	DistributedTTL       time.Duration `mapstructure:"distributed_ttl"`
	Namespace            string        `mapstructure:"namespace"`
	CompressionThreshold int           `mapstructure:"compression_threshold"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	WriteAttempts        int           `mapstructure:"write_attempts"`
	BreakerFailureRatio  float64       `mapstructure:"breaker_failure_ratio"`
	BreakerOpenTimeout   time.Duration `mapstructure:"breaker_open_timeout"`
}

type ArchiveConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Schedule        string        `mapstructure:"schedule"`
	ActiveGuardDays int           `mapstructure:"active_guard_days"`
	KeepVersions    int           `mapstructure:"keep_versions"`
	VersionsPerSec  float64       `mapstructure:"versions_per_sec"`
	Backup          bool          `mapstructure:"backup"`
	ColdStorage     S3Config      `mapstructure:"cold_storage"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
}

type S3Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topic         string   `mapstructure:"topic"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	JaegerURL    string  `mapstructure:"jaeger_url"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	AddCaller  bool   `mapstructure:"add_caller"`
	Stacktrace bool   `mapstructure:"stacktrace"`
}

// Load reads <serviceName>.yaml from ./configs or /etc/flowvault and
// overlays FLOWVAULT_* environment variables on top of the defaults.
func Load(serviceName string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(serviceName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/flowvault")

	setDefaults(v)

	v.SetEnvPrefix("FLOWVAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(v, &config)

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "flowvault")
	v.SetDefault("database.password", "flowvault")
	v.SetDefault("database.name", "flowvault")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "flowvault.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.slow_query_threshold", 200*time.Millisecond)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("cache.local_max_entries", 10000)
	v.SetDefault("cache.local_ttl", 30*time.Minute)
	v.SetDefault("cache.distributed_ttl", 24*time.Hour)
	v.SetDefault("cache.namespace", "flowvault")
	v.SetDefault("cache.compression_threshold", 4096)
	v.SetDefault("cache.write_timeout", 200*time.Millisecond)
	v.SetDefault("cache.write_attempts", 2)
	v.SetDefault("cache.breaker_failure_ratio", 0.5)
	v.SetDefault("cache.breaker_open_timeout", 30*time.Second)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.schedule", "0 3 * * *")
	v.SetDefault("archive.active_guard_days", 7)
	v.SetDefault("archive.keep_versions", 10)
	v.SetDefault("archive.versions_per_sec", 20.0)
	v.SetDefault("archive.backup", true)
	v.SetDefault("archive.run_timeout", 30*time.Minute)
	v.SetDefault("archive.cold_storage.prefix", "archive/flows")

	v.SetDefault("kafka.consumer_group", "flowvault-group")
	v.SetDefault("kafka.topic", "flowvault.flow-events")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.jaeger_url", "http://localhost:14268/api/traces")
	v.SetDefault("telemetry.service_name", "flowvault")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.add_caller", true)
	v.SetDefault("logger.stacktrace", false)
}

func overrideFromEnv(v *viper.Viper, cfg *Config) {
	// Lists do not bind through AutomaticEnv.
	if brokers := v.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if host := v.GetString("DATABASE_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		cfg.Redis.Host = redisHost
	}
}

func (c *DatabaseConfig) DSN() string {
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
}

func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
