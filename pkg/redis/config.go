package redis

import "time"

type Config struct {
	ConnectionURL      string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`   // ConnectionURL is used when no service credentials are bound. Format: "redis://:password@localhost:6379/0"
	ServiceCredentials string        `env:"REDIS_SERVICE_CREDENTIALS"`                         // ServiceCredentials is the JSON credentials object of a bound Redis service in a hosted environment. Takes precedence over ConnectionURL.
	RetryAttempts      int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`               // RetryAttempts is the number of ping attempts when a connection is (re)created.
	RetryInterval      time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`              // RetryInterval is the delay between ping attempts and between subscription recovery attempts.
	ConnectTimeout     time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`            // ConnectTimeout bounds a single connection (re)creation including all retries.
}

// DefaultConfig returns the configuration used when fields are left empty.
func DefaultConfig() Config {
	return Config{
		ConnectionURL:  "redis://localhost:6379/0",
		RetryAttempts:  3,
		RetryInterval:  5 * time.Second,
		ConnectTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectionURL == "" && c.ServiceCredentials == "" {
		c.ConnectionURL = def.ConnectionURL
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = def.RetryAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	return c
}
