// Package config holds the client and server settings of xfer.
//
// Values come from Default, then an optional YAML file (Load),
// then XFER_* environment variables (ApplyEnv). Command-line flags override all three.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config is the top-level layout of an xfer YAML file.
type Config struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

// Client configures the client facade.
type Client struct {
	Host      string `yaml:"host" envconfig:"HOST"`
	Port      int    `yaml:"port" envconfig:"PORT"`
	ChunkSize int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`

	ReadTimeout  Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	DialTimeout  Duration `yaml:"dial_timeout" envconfig:"DIAL_TIMEOUT"`

	// DialAttempts bounds how many times the TCP dial is tried. Commands are never retried.
	DialAttempts   int      `yaml:"dial_attempts" envconfig:"DIAL_ATTEMPTS"`
	DialRetryDelay Duration `yaml:"dial_retry_delay" envconfig:"DIAL_RETRY_DELAY"`

	// KeepAlive is the TCP keepalive idle period; zero disables keepalive.
	KeepAlive Duration `yaml:"keep_alive" envconfig:"KEEP_ALIVE"`
}

// Addr returns the host:port the client dials.
func (c Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first setting that cannot work.
func (c Client) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("client.host is required")
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("client.port %d out of range", c.Port)
	case c.ChunkSize <= 0:
		return errors.Errorf("client.chunk_size must be positive, was %d", c.ChunkSize)
	case c.DialAttempts < 1:
		return errors.Errorf("client.dial_attempts must be at least 1, was %d", c.DialAttempts)
	case c.ReadTimeout.Duration < 0, c.WriteTimeout.Duration < 0, c.DialTimeout.Duration < 0:
		return errors.New("client timeouts cannot be negative")
	}
	return nil
}

// Server configures the reference server.
type Server struct {
	Listen    string `yaml:"listen" envconfig:"LISTEN"`
	Backend   string `yaml:"backend" envconfig:"BACKEND"`
	Root      string `yaml:"root" envconfig:"ROOT"`
	MaxConns  int    `yaml:"max_conns" envconfig:"MAX_CONNS"`
	ChunkSize int    `yaml:"chunk_size" envconfig:"CHUNK_SIZE"`

	ReadTimeout  Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`

	S3 S3 `yaml:"s3" envconfig:"S3"`
}

// Backends understood by Server.Backend.
const (
	BackendDir    = "dir"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// Validate reports the first setting that cannot work.
func (s Server) Validate() error {
	switch {
	case s.Listen == "":
		return errors.New("server.listen is required")
	case s.ChunkSize <= 0:
		return errors.Errorf("server.chunk_size must be positive, was %d", s.ChunkSize)
	case s.MaxConns < 0:
		return errors.Errorf("server.max_conns cannot be negative, was %d", s.MaxConns)
	}

	switch s.Backend {
	case BackendDir:
		if s.Root == "" {
			return errors.New("server.root is required for the dir backend")
		}
	case BackendMemory:
	case BackendS3:
		if s.S3.Bucket == "" {
			return errors.New("server.s3.bucket is required for the s3 backend")
		}
	default:
		return errors.Errorf("unknown server.backend %q", s.Backend)
	}
	return nil
}

// S3 configures the S3 storage backend.
type S3 struct {
	Bucket   string `yaml:"bucket" envconfig:"BUCKET"`
	Prefix   string `yaml:"prefix" envconfig:"PREFIX"`
	Region   string `yaml:"region" envconfig:"REGION"`
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`

	// KMSKeyID selects aws:kms encryption for uploads; empty means AES256.
	KMSKeyID string `yaml:"kms_key_id" envconfig:"KMS_KEY_ID"`
}

// Log configures logging for the entry points.
type Log struct {
	Level string `yaml:"level" envconfig:"LEVEL"`
}

// Default returns the settings used when nothing else is configured.
func Default() *Config {
	return &Config{
		Client: Client{
			Host:           "127.0.0.1",
			Port:           12345,
			ChunkSize:      65535,
			ReadTimeout:    Duration{30 * time.Second},
			WriteTimeout:   Duration{30 * time.Second},
			DialTimeout:    Duration{10 * time.Second},
			DialAttempts:   1,
			DialRetryDelay: Duration{500 * time.Millisecond},
			KeepAlive:      Duration{30 * time.Second},
		},
		Server: Server{
			Listen:       ":12345",
			Backend:      BackendDir,
			Root:         ".",
			ChunkSize:    65535,
			ReadTimeout:  Duration{5 * time.Minute},
			WriteTimeout: Duration{30 * time.Second},
		},
		Log: Log{
			Level: "info",
		},
	}
}
