package config

import (
	"bytes"
	"io"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv,
// e.g. XFER_CLIENT_HOST or XFER_SERVER_S3_BUCKET.
const EnvPrefix = "XFER"

// Load reads a YAML config file on top of Default.
// Keys absent from the file keep their default values; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config file not found: %s", path)
		}
		return nil, errors.Wrapf(err, "cannot read config file %q", path)
	}

	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, errors.Wrapf(err, "invalid YAML in %s", path)
	}

	return cfg, nil
}

// ApplyEnv overrides cfg with any XFER_* environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix+"_CLIENT", &cfg.Client); err != nil {
		return errors.Wrap(err, "client environment")
	}
	if err := envconfig.Process(EnvPrefix+"_SERVER", &cfg.Server); err != nil {
		return errors.Wrap(err, "server environment")
	}
	if err := envconfig.Process(EnvPrefix+"_LOG", &cfg.Log); err != nil {
		return errors.Wrap(err, "log environment")
	}
	return nil
}
