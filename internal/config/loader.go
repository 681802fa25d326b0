package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"bbkernel/internal/apperr"
	"bbkernel/internal/common/fsutil"
)

// Defaults applied by ApplyDefaults when the corresponding field is unset.
const (
	DefaultAddr              = ":8080"
	DefaultContainerDir      = "var/cache/container"
	DefaultContainerFilename = "bbapp_container"
	DefaultSequenceTable     = "sequence"
	DefaultLogLevel          = "info"
	DefaultLogOutput         = "stderr"
	DefaultLogMode           = "a"
	DefaultConnectRetries    = 3
	DefaultMaxBodyBytes      = 1 << 20
)

// Config holds runtime parameters for the kernel.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr              string         `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	Debug             bool           `json:"debug" yaml:"debug" toml:"debug"`
	ConfigDir         string         `json:"config_dir" yaml:"config_dir" toml:"config_dir"`
	ContainerDir      string         `json:"container_dir" yaml:"container_dir" toml:"container_dir" validate:"required"`
	ContainerFilename string         `json:"container_filename" yaml:"container_filename" toml:"container_filename" validate:"required,excludesall=/\\"`
	RoutingFile       string         `json:"routing_file" yaml:"routing_file" toml:"routing_file"`
	AnnotationsFile   string         `json:"annotations_file" yaml:"annotations_file" toml:"annotations_file"`
	BundleConfigDir   string         `json:"bundle_config_dir" yaml:"bundle_config_dir" toml:"bundle_config_dir"`
	Database          DatabaseConfig `json:"database" yaml:"database" toml:"database"`
	Log               LogConfig      `json:"log" yaml:"log" toml:"log"`
	HTTP              HTTPConfig     `json:"http" yaml:"http" toml:"http"`
}

// DatabaseConfig selects the sequencer's backing store. An empty driver
// disables the sequencer.
type DatabaseConfig struct {
	Driver         string `json:"driver" yaml:"driver" toml:"driver" validate:"omitempty,oneof=postgres pgx sqlite3"`
	DSN            string `json:"dsn" yaml:"dsn" toml:"dsn" validate:"required_with=Driver"`
	Table          string `json:"table" yaml:"table" toml:"table"`
	MaxOpenConns   int    `json:"max_open_conns" yaml:"max_open_conns" toml:"max_open_conns" validate:"gte=0"`
	ConnectRetries uint   `json:"connect_retries" yaml:"connect_retries" toml:"connect_retries"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level   string `json:"level" yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error off"`
	Output  string `json:"output" yaml:"output" toml:"output"`
	Mode    string `json:"mode" yaml:"mode" toml:"mode" validate:"omitempty,oneof=a w"`
	Pattern string `json:"pattern" yaml:"pattern" toml:"pattern"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	MaxBodyBytes int64      `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	CORS         CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
	Swagger      bool       `json:"swagger" yaml:"swagger" toml:"swagger"`
}

// CORSConfig is opt-in.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, apperr.New(apperr.CodeInvalidConfig, "empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, apperr.Wrap(apperr.CodeInvalidConfig, err, "read config")
	}
	if err := Decode(path, b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode unmarshals b into out using the format implied by path's extension.
func Decode(path string, b []byte, out any) error {
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, out)
	case ".json":
		err = json.Unmarshal(b, out)
	case ".toml":
		err = toml.Unmarshal(b, out)
	default:
		return apperr.Newf(apperr.CodeUnsupportedFormat, "unsupported config extension: %s", ext)
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeConfigParse, err, "parse "+filepath.Base(path))
	}
	return nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ContainerDir == "" {
		c.ContainerDir = DefaultContainerDir
	}
	if c.ContainerFilename == "" {
		c.ContainerFilename = DefaultContainerFilename
	}
	if c.Database.Table == "" {
		c.Database.Table = DefaultSequenceTable
	}
	if c.Database.ConnectRetries == 0 {
		c.Database.ConnectRetries = DefaultConnectRetries
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Output == "" {
		c.Log.Output = DefaultLogOutput
	}
	if c.Log.Mode == "" {
		c.Log.Mode = DefaultLogMode
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("BBKERNEL_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("BBKERNEL_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("BBKERNEL_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
}

// ExpandPaths resolves a leading '~' in every path field.
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.ConfigDir, &c.ContainerDir, &c.RoutingFile, &c.AnnotationsFile, &c.BundleConfigDir} {
		v, err := fsutil.ExpandHome(*p)
		if err != nil {
			return apperr.Wrap(apperr.CodeInvalidConfig, err, "expand path")
		}
		*p = v
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return apperr.Wrap(apperr.CodeInvalidConfig, err, "invalid config")
	}
	return nil
}

// DumpPath is the file the compiled container is written to.
func (c Config) DumpPath() string {
	return filepath.Join(c.ContainerDir, c.ContainerFilename+".json")
}
