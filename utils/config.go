package utils

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Config Configuration of the server, read from a YAML file
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text or json
	} `yaml:"log"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite or mysql
		Sqlite struct {
			Filename string `yaml:"filename"`
		} `yaml:"sqlite"`
		Mysql struct {
			DSN string `yaml:"dsn"`
		} `yaml:"mysql"`
	} `yaml:"database"`

	Storage struct {
		Root string `yaml:"root"`
	} `yaml:"storage"`

	Upload struct {
		MaxSizeMB float64  `yaml:"max_size_mb"`
		Formats   []string `yaml:"formats"`
	} `yaml:"upload"`
}

const (
	DefaultPort      = "8000"
	DefaultMaxSizeMB = 20
)

// DefaultFormats Image formats accepted for upload when none are configured
var DefaultFormats = []string{"JPEG", "PNG", "TIFF"}

// MaxSizeBytes The upload ceiling in bytes
func (c *Config) MaxSizeBytes() int64 {
	return int64(c.Upload.MaxSizeMB * (1 << 20))
}

// ApplyDefaults Fill in every value which is left empty
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = DefaultPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Sqlite.Filename == "" {
		c.Database.Sqlite.Filename = "dentascope.sqlite"
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "media"
	}
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = DefaultMaxSizeMB
	}
	if len(c.Upload.Formats) == 0 {
		c.Upload.Formats = append([]string(nil), DefaultFormats...)
	}
	for i, format := range c.Upload.Formats {
		c.Upload.Formats[i] = strings.ToUpper(strings.TrimSpace(format))
	}
}

// NewConfig Read the configuration at configPath. Values in a .env file next to the
// working directory are loaded into the environment first, so ${VAR} references
// in the YAML can use them.
func NewConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	config.ApplyDefaults()

	log.Debug(fmt.Sprintf("Loaded configuration from %s", configPath))
	return config, nil
}

// ValidateConfigPath Make sure the path exists and is a regular file
func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a normal file", path)
	}
	return nil
}

// ParseFlags Parse the command line flags, returns the config path and whether debug mode is on
func ParseFlags() (string, bool, error) {
	var configPath string
	var debugMode bool

	flag.StringVar(&configPath, "config", "./config.yml", "path to config file")
	flag.BoolVar(&debugMode, "debug", false, "run gin in debug mode")
	flag.Parse()

	if err := ValidateConfigPath(configPath); err != nil {
		return "", false, err
	}
	return configPath, debugMode, nil
}
