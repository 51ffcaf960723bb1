package config

import (
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/wire"
)

// EnvPrefix is the prefix for environment variable overrides, e.g.
// ZTERADB_OPTIONS_CONNECTION_POOL_MAX.
const EnvPrefix = "ZTERADB"

// configSchema structurally validates a loaded configuration document before
// it is unmarshalled. Semantic rules (env alphabet, pool bounds ordering)
// live in Config.Validate.
const configSchema = `{
	"type": "object",
	"required": ["client_key", "access_key", "secret_key", "database_id", "env", "response_data_type"],
	"properties": {
		"client_key":         {"type": "string", "minLength": 1},
		"access_key":         {"type": "string", "minLength": 1},
		"secret_key":         {"type": "string", "minLength": 1},
		"database_id":        {"type": "string", "minLength": 1},
		"env":                {"type": "string"},
		"response_data_type": {"type": "string"},
		"use_tls":            {"type": "boolean"},
		"verify_tls_host":    {"type": "boolean"},
		"options": {
			"type": "object",
			"properties": {
				"connection_pool": {
					"type": "object",
					"properties": {
						"min": {"type": "integer", "minimum": 0},
						"max": {"type": "integer", "minimum": 0}
					}
				}
			}
		}
	}
}`

// Load reads a configuration file (JSON or YAML, decided by extension),
// merges ZTERADB_-prefixed environment variables over it, validates the
// result, and unmarshals it into a Config.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, zterr.Value("failed to read config file %s: %v", path, err)
	}

	if err := validateDocument(v.AllSettings()); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, zterr.Value("failed to unmarshal config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("response_data_type", DataTypeJSON)
	v.SetDefault("use_tls", false)
	v.SetDefault("verify_tls_host", false)
	v.SetDefault("options.connection_pool.min", 1)
	v.SetDefault("options.connection_pool.max", 1)
}

// validateDocument checks a settings map against the structural schema.
func validateDocument(settings map[string]interface{}) error {
	doc, err := wire.EncodeJSON(settings)
	if err != nil {
		return err
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return zterr.Value("failed to validate config: %v", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return zterr.Value("invalid config: %s", strings.Join(msgs, "; "))
	}

	return nil
}
