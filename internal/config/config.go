package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const envPrefix = "LOADER"

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	WriteModeInsert = "insert"
	WriteModeUpsert = "upsert"
)

type Config struct {
	SourceDir         string `yaml:"source_dir" split_words:"true" validate:"required"`
	TargetDir         string `yaml:"target_dir" split_words:"true" validate:"required,nefield=SourceDir"`
	EquitySuffix      string `yaml:"equity_suffix" split_words:"true" default:"_NSE.csv" validate:"required"`
	FuturesSuffix     string `yaml:"futures_suffix" split_words:"true" default:"_NSEFO.csv" validate:"required,nefield=EquitySuffix"`
	FuturesInstrument string `yaml:"futures_instrument" split_words:"true" default:"FUTSTK" validate:"required"`

	Store   StoreConfig   `yaml:"store" split_words:"true"`
	Lock    LockConfig    `yaml:"lock" split_words:"true"`
	Logging LoggingConfig `yaml:"logging" split_words:"true"`
}

type StoreConfig struct {
	Driver            string        `yaml:"driver" split_words:"true" default:"mongo" validate:"oneof=mongo postgres"`
	WriteMode         string        `yaml:"write_mode" split_words:"true" default:"upsert" validate:"oneof=insert upsert"`
	Host              string        `yaml:"host" split_words:"true" default:"localhost" validate:"required_if=Driver mongo"`
	Port              int           `yaml:"port" split_words:"true" default:"27017" validate:"min=1,max=65535"`
	Username          string        `yaml:"username" split_words:"true"`
	Password          string        `yaml:"password" split_words:"true"`
	Database          string        `yaml:"database" split_words:"true" default:"stocks" validate:"required"`
	EquityCollection  string        `yaml:"equity_collection" split_words:"true" default:"equity" validate:"required"`
	FuturesCollection string        `yaml:"futures_collection" split_words:"true" default:"futures" validate:"required"`
	FileCollection    string        `yaml:"file_collection" split_words:"true" default:"file_records" validate:"required"`
	DatabaseURL       string        `yaml:"database_url" envconfig:"DATABASE_URL" validate:"required_if=Driver postgres"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" split_words:"true" default:"10s" validate:"gt=0"`
	WriteTimeout      time.Duration `yaml:"write_timeout" split_words:"true" default:"5s" validate:"gt=0"`
}

// LockConfig configures the optional run lock. An empty RedisAddr disables it.
type LockConfig struct {
	RedisAddr     string        `yaml:"redis_addr" split_words:"true"`
	RedisPassword string        `yaml:"redis_password" split_words:"true"`
	RedisDB       int           `yaml:"redis_db" split_words:"true" default:"0" validate:"min=0"`
	Key           string        `yaml:"key" split_words:"true" default:"stocks-dossier:feed-loader" validate:"required"`
	TTL           time.Duration `yaml:"ttl" split_words:"true" default:"2h" validate:"gt=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true" default:"info" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" split_words:"true" default:"json" validate:"oneof=json text"`
}

// New builds the configuration from LOADER_* environment variables and their defaults. When
// path is not empty the YAML file at path is applied on top, so values set in the file win.
func New(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.ExpandEnv(string(data))
	return yaml.Unmarshal([]byte(expanded), cfg)
}

func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// MongoURI assembles the connection string from host, port and optional credentials.
func (s StoreConfig) MongoURI() string {
	uri := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(s.Host, strconv.Itoa(s.Port))}
	if s.Username != "" {
		uri.User = url.UserPassword(s.Username, s.Password)
	}
	return uri.String()
}

func (l LockConfig) Enabled() bool {
	return l.RedisAddr != ""
}
