package container

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"gopkg.in/yaml.v3"
)

// ConfigHTTPServer struct for HTTP ConfigTransport configuration
type ConfigHTTPServer struct {
	Port int `yaml:"port" validate:"required,min=1,max=65535"`

	// RequestTimeout bounds buffered requests, zero means no limit.
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"min=0"`
	MaxUploadBytes int64         `yaml:"maxUploadBytes" validate:"min=0"`
	UploadDir      string        `yaml:"uploadDir" validate:"required"`
}

// ConfigTransport is a configuration for the inbound transport.
type ConfigTransport struct {
	HTTP ConfigHTTPServer `yaml:"http"`
}

type ConfigGoSqlDb struct {
	Debug bool   `yaml:"debug"`
	DSN   string `yaml:"dsn"` // Data Source Name
}

type ConfigDatabaseResource struct {
	Disable bool   `yaml:"disable"`
	Driver  string `yaml:"driver" validate:"required,oneof=postgres sqlite"`

	// per driver configuration
	Postgres ConfigGoSqlDb `yaml:"postgres"`
	Sqlite   ConfigGoSqlDb `yaml:"sqlite"`
}

// ConfigDatabaseResources redefine config
type ConfigDatabaseResources map[string]ConfigDatabaseResource

type ConfigRedisResource struct {
	Mode       string   `yaml:"mode" validate:"required,oneof=single sentinel cluster"`
	Address    []string `yaml:"address" validate:"required,min=1"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	DB         int      `yaml:"db"`
	MasterName string   `yaml:"masterName"`
}

type ConfigRedisResources map[string]ConfigRedisResource

type ConfigSMTP struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	DisableStartTLS bool          `yaml:"disableStartTLS"`
	Timeout         time.Duration `yaml:"timeout"`
}

type ConfigSES struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"accessKeyID"`
	SecretAccessKey string `yaml:"secretAccessKey"`
}

type ConfigMail struct {
	Transport string     `yaml:"transport" validate:"required,oneof=smtp ses log"`
	Sender    string     `yaml:"sender"`
	SMTP      ConfigSMTP `yaml:"smtp"`
	SES       ConfigSES  `yaml:"ses"`
}

type ConfigGemini struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type ConfigLogs struct {
	CSVDir  string `yaml:"csvDir" validate:"required"`
	TextDir string `yaml:"textDir" validate:"required"`

	// Timezone is an IANA name, empty means the server local time.
	Timezone string `yaml:"timezone"`
}

type ConfigMerge struct {
	MaxParallel int `yaml:"maxParallel" validate:"min=1"`
	MaxQueue    int `yaml:"maxQueue" validate:"min=0"`
}

type ConfigCache struct {
	Type       string        `yaml:"type" validate:"required,oneof=memory redis"`
	MaxBytes   int           `yaml:"maxBytes" validate:"min=0"`
	RedisLabel string        `yaml:"redisLabel" validate:"required_if=Type redis"`
	KeyPrefix  string        `yaml:"keyPrefix"`
	TTL        time.Duration `yaml:"ttl" validate:"min=0"`
}

type ConfigEvents struct {
	Type       string        `yaml:"type" validate:"required,oneof=memory redis"`
	BufferSize int           `yaml:"bufferSize" validate:"min=0"`
	RedisLabel string        `yaml:"redisLabel" validate:"required_if=Type redis"`
	Channel    string        `yaml:"channel" validate:"required"`
	Heartbeat  time.Duration `yaml:"heartbeat" validate:"min=0"`
}

type ConfigAttemptStore struct {
	// DBLabel names an entry of databaseResources, empty disables the history mirror.
	DBLabel string `yaml:"dbLabel"`
}

type ConfigTracing struct {
	// JaegerEndpoint is the collector url, empty keeps tracing local only.
	JaegerEndpoint string `yaml:"jaegerEndpoint"`
	Environment    string `yaml:"environment"`
}

// Config contains application config
type Config struct {
	Transport         ConfigTransport         `yaml:"transport"`
	DatabaseResources ConfigDatabaseResources `yaml:"databaseResources" validate:"dive"`
	RedisResources    ConfigRedisResources    `yaml:"redisResources" validate:"dive"`
	Mail              ConfigMail              `yaml:"mail"`
	Gemini            ConfigGemini            `yaml:"gemini"`
	Logs              ConfigLogs              `yaml:"logs"`
	Merge             ConfigMerge             `yaml:"merge"`
	Cache             ConfigCache             `yaml:"cache"`
	Events            ConfigEvents            `yaml:"events"`
	AttemptStore      ConfigAttemptStore      `yaml:"attemptStore"`
	Tracing           ConfigTracing           `yaml:"tracing"`
}

// DefaultConfig is what runs when neither config file nor environment says otherwise.
func DefaultConfig() Config {
	return Config{
		Transport: ConfigTransport{
			HTTP: ConfigHTTPServer{
				Port:           5000,
				RequestTimeout: 2 * time.Minute,
				MaxUploadBytes: 32 << 20,
				UploadDir:      "uploads",
			},
		},
		DatabaseResources: ConfigDatabaseResources{},
		RedisResources:    ConfigRedisResources{},
		Mail: ConfigMail{
			Transport: "smtp",
			SMTP: ConfigSMTP{
				Host:    "smtp.gmail.com",
				Port:    587,
				Timeout: 30 * time.Second,
			},
		},
		Gemini: ConfigGemini{
			Model: "gemini-1.5-pro",
		},
		Logs: ConfigLogs{
			CSVDir:  "email_logs",
			TextDir: "logs",
		},
		Merge: ConfigMerge{
			MaxParallel: 1,
		},
		Cache: ConfigCache{
			Type: "memory",
			TTL:  time.Hour,
		},
		Events: ConfigEvents{
			Type:      "memory",
			Channel:   "edumail:attempts",
			Heartbeat: 15 * time.Second,
		},
		Tracing: ConfigTracing{
			Environment: "development",
		},
	}
}

// LoadConfig is ReadConfig followed by Validate.
func LoadConfig(configFile string) (cfg Config, err error) {
	cfg, err = ReadConfig(configFile)
	if err != nil {
		return
	}

	err = cfg.Validate()
	return
}

// ReadConfig reads the YAML file over the defaults, then the .env file and the process environment on top.
// A missing config file or .env file is not an error.
func ReadConfig(configFile string) (cfg Config, err error) {
	cfg = DefaultConfig()

	fileContent, err := os.ReadFile(configFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		err = nil

	case err != nil:
		err = fmt.Errorf("error read file config %s: %w", configFile, err)
		return

	default:
		dec := yaml.NewDecoder(bytes.NewReader(fileContent))
		dec.KnownFields(false)
		if err = dec.Decode(&cfg); err != nil {
			err = fmt.Errorf("error decode file config %s: %w", configFile, err)
			return
		}
	}

	// godotenv never overrides variables that are already set
	if err = godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		err = fmt.Errorf("error load .env: %w", err)
		return
	}

	err = applyEnv(&cfg, os.LookupEnv)
	return
}

// applyEnv lets the deployment environment variables override the file values.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		if !ok {
			return "", false
		}

		v = strings.TrimSpace(v)
		return v, v != ""
	}

	if v, ok := get("GEMINI_API_KEY"); ok {
		cfg.Gemini.APIKey = v
	}

	if v, ok := get("SMTP_SERVER"); ok {
		cfg.Mail.SMTP.Host = v
	}

	if v, ok := get("SMTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SMTP_PORT must be a number: %w", err)
		}

		cfg.Mail.SMTP.Port = port
	}

	if v, ok := get("SMTP_USERNAME"); ok {
		cfg.Mail.SMTP.Username = v
	}

	if v, ok := get("SMTP_PASSWORD"); ok {
		cfg.Mail.SMTP.Password = v
	}

	if v, ok := get("MAIL_DEFAULT_SENDER"); ok {
		cfg.Mail.Sender = v
	}

	if cfg.Mail.Sender == "" {
		cfg.Mail.Sender = cfg.Mail.SMTP.Username
	}

	return nil
}

// Validate checks the field rules and the cross references between sections.
func (c Config) Validate() error {
	if err := validator.Validate(c); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}

	if c.Mail.Transport == "smtp" {
		if err := validator.Validate(smtpRule{Host: c.Mail.SMTP.Host, Port: c.Mail.SMTP.Port}); err != nil {
			return fmt.Errorf("mail.smtp validation error: %w", err)
		}
	}

	if c.Mail.Transport == "ses" && c.Mail.SES.Region == "" {
		return fmt.Errorf("mail.ses.region is required when mail.transport is ses")
	}

	if c.Mail.Transport != "log" && c.Mail.Sender == "" {
		return fmt.Errorf("mail.sender is required, set MAIL_DEFAULT_SENDER or SMTP_USERNAME")
	}

	for _, label := range []struct{ section, name string }{
		{"cache.redisLabel", c.Cache.RedisLabel},
		{"events.redisLabel", c.Events.RedisLabel},
	} {
		if label.name == "" {
			continue
		}

		if _, ok := c.RedisResources[label.name]; !ok {
			return fmt.Errorf("%s %q is not defined in redisResources", label.section, label.name)
		}
	}

	if c.AttemptStore.DBLabel != "" {
		db, ok := c.DatabaseResources[c.AttemptStore.DBLabel]
		if !ok {
			return fmt.Errorf("attemptStore.dbLabel %q is not defined in databaseResources", c.AttemptStore.DBLabel)
		}

		if db.Disable {
			return fmt.Errorf("attemptStore.dbLabel %q is disabled", c.AttemptStore.DBLabel)
		}
	}

	if c.Logs.Timezone != "" {
		if _, err := time.LoadLocation(c.Logs.Timezone); err != nil {
			return fmt.Errorf("logs.timezone: %w", err)
		}
	}

	return nil
}

// Location resolves logs.timezone, the server local time when empty.
func (c Config) Location() *time.Location {
	if c.Logs.Timezone == "" {
		return time.Local
	}

	loc, err := time.LoadLocation(c.Logs.Timezone)
	if err != nil {
		return time.Local
	}

	return loc
}

type smtpRule struct {
	Host string `validate:"required"`
	Port int    `validate:"required,min=1,max=65535"`
}
