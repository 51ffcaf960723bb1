// Package config defines the client configuration surface and its loading
// and validation rules.
package config

import (
	zterr "github.com/zteradb/zteradb-go/errors"
)

// Environments recognized by the server's router.
const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvQA      = "qa"
	EnvProd    = "prod"
)

// DataTypeJSON is the only supported response payload codec.
const DataTypeJSON = "json"

// PoolConfig bounds the connection pool. Max == 0 means unbounded.
type PoolConfig struct {
	Min int `mapstructure:"min" json:"min"`
	Max int `mapstructure:"max" json:"max"`
}

// Options groups optional settings.
type Options struct {
	ConnectionPool PoolConfig `mapstructure:"connection_pool" json:"connection_pool"`
}

// Config is the client configuration. Treat it as immutable once a pool has
// been constructed from it.
type Config struct {
	ClientKey        string  `mapstructure:"client_key" json:"client_key"`
	AccessKey        string  `mapstructure:"access_key" json:"access_key"`
	SecretKey        string  `mapstructure:"secret_key" json:"secret_key"`
	DatabaseID       string  `mapstructure:"database_id" json:"database_id"`
	Env              string  `mapstructure:"env" json:"env"`
	ResponseDataType string  `mapstructure:"response_data_type" json:"response_data_type"`
	UseTLS           bool    `mapstructure:"use_tls" json:"use_tls"`
	VerifyTLSHost    bool    `mapstructure:"verify_tls_host" json:"verify_tls_host"`
	Options          Options `mapstructure:"options" json:"options"`
}

// Default returns a config with the documented defaults filled in. Identity
// fields are left empty and must be set by the caller.
func Default() *Config {
	return &Config{
		ResponseDataType: DataTypeJSON,
		Options: Options{
			ConnectionPool: PoolConfig{Min: 1, Max: 1},
		},
	}
}

// ValidEnv reports whether env is in the recognized alphabet.
func ValidEnv(env string) bool {
	switch env {
	case EnvDev, EnvStaging, EnvQA, EnvProd:
		return true
	}
	return false
}

// Validate checks the semantic rules that the structural schema cannot
// express alongside the required-field rules.
func (c *Config) Validate() error {
	if c.ClientKey == "" {
		return zterr.Value("client_key must be a non-empty string")
	}
	if c.AccessKey == "" {
		return zterr.Value("access_key must be a non-empty string")
	}
	if c.SecretKey == "" {
		return zterr.Value("secret_key must be a non-empty string")
	}
	if c.DatabaseID == "" {
		return zterr.Value("database_id must be a non-empty string")
	}
	if !ValidEnv(c.Env) {
		return zterr.Value("env must be one of dev, staging, qa, prod; got %q", c.Env)
	}
	if c.ResponseDataType != DataTypeJSON {
		return zterr.Value("response_data_type %q is not supported", c.ResponseDataType)
	}

	pool := c.Options.ConnectionPool
	if pool.Min < 0 || pool.Max < 0 {
		return zterr.Value("connection_pool bounds must be non-negative")
	}
	if pool.Max != 0 && pool.Min > pool.Max {
		return zterr.Value("connection_pool.min %d exceeds max %d", pool.Min, pool.Max)
	}

	return nil
}
