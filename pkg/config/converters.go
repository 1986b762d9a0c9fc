package config

import (
	"github.com/flowvault-go/pkg/cache"
	"github.com/flowvault-go/pkg/database"
	"github.com/flowvault-go/pkg/events"
	"github.com/flowvault-go/pkg/logger"
	"github.com/flowvault-go/pkg/resilience"
	"github.com/flowvault-go/pkg/telemetry"
)

// ToLoggerConfig converts LoggerConfig to logger.Config
func (c LoggerConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddCaller:  c.AddCaller,
		Stacktrace: c.Stacktrace,
	}
}

// ToDatabaseConfig converts DatabaseConfig to database.Config
func (c DatabaseConfig) ToDatabaseConfig() database.Config {
	return database.Config{
		Driver:             c.Driver,
		DSN:                c.DSN(),
		MaxOpenConns:       c.MaxOpenConns,
		MaxIdleConns:       c.MaxIdleConns,
		SlowQueryThreshold: c.SlowQueryThreshold,
	}
}

// ToKafkaConfig converts KafkaConfig to events.KafkaConfig
func (c KafkaConfig) ToKafkaConfig() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers:       c.Brokers,
		Topic:         c.Topic,
		ConsumerGroup: c.ConsumerGroup,
	}
}

// ToTelemetryConfig converts TelemetryConfig to telemetry.Config
func (c TelemetryConfig) ToTelemetryConfig() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Enabled,
		JaegerURL:    c.JaegerURL,
		ServiceName:  c.ServiceName,
		SamplingRate: c.SamplingRate,
	}
}

// LocalOptions returns the options for the process-local tier.
func (c CacheConfig) LocalOptions() *cache.Options {
	opts := cache.DefaultOptions()
	opts.DefaultTTL = c.LocalTTL
	opts.MaxEntries = c.LocalMaxEntries
	return opts
}

// DistributedOptions returns the options for the redis tier.
func (c CacheConfig) DistributedOptions() *cache.Options {
	opts := cache.DefaultOptions()
	opts.DefaultTTL = c.DistributedTTL
	opts.Namespace = c.Namespace
	opts.CompressionThreshold = c.CompressionThreshold
	return opts
}

// WriteRetry returns the bounded retry policy for distributed tier writes.
func (c CacheConfig) WriteRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if c.WriteAttempts > 0 {
		cfg.MaxAttempts = c.WriteAttempts
	}
	cfg.InitialDelay = c.WriteTimeout / 10
	cfg.MaxDelay = c.WriteTimeout
	cfg.AttemptTimeout = c.WriteTimeout
	return cfg
}

// WriteBreaker returns the circuit breaker settings guarding the redis tier.
func (c CacheConfig) WriteBreaker(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	if c.BreakerFailureRatio > 0 {
		cfg.FailureRatio = c.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout > 0 {
		cfg.Timeout = c.BreakerOpenTimeout
	}
	return cfg
}
