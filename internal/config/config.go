package config

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/admitly/admissions/internal/errors"
)

const (
	// ConfigFileName is the default name of the configuration file.
	ConfigFileName = "admissions.json"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ADMISSIONS_"

	// DefaultPort is the default HTTP port.
	DefaultPort = 8080

	// DefaultHost is the default bind host.
	DefaultHost = "0.0.0.0"

	// DefaultCRMTimeout bounds every CRM request.
	DefaultCRMTimeout = "10s"

	// DefaultMetadataMethod is the whitelisted CRM method returning option sets.
	DefaultMetadataMethod = "admissions.api.get_form_metadata"

	// DefaultLeadsMethod is the whitelisted CRM method listing leads.
	DefaultLeadsMethod = "admissions.api.get_leads"
)

// Metadata source names.
const (
	SourceCRM      = "crm"
	SourceEmbedded = "embedded"
	SourceS3       = "s3"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`
	CRM      CRMConfig      `json:"crm" envPrefix:"CRM_"`
	Metadata MetadataConfig `json:"metadata" envPrefix:"METADATA_"`
	Forms    FormsConfig    `json:"forms" envPrefix:"FORMS_"`
	Leads    LeadsConfig    `json:"leads" envPrefix:"LEADS_"`
	Log      LogConfig      `json:"log" envPrefix:"LOG_"`
	Tracing  TracingConfig  `json:"tracing" envPrefix:"OTEL_"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host,omitempty" env:"HOST"`
	Port int    `json:"port,omitempty" env:"PORT"`

	// ShutdownTimeout bounds graceful shutdown (e.g., "15s").
	ShutdownTimeout string `json:"shutdownTimeout,omitempty" env:"SHUTDOWN_TIMEOUT"`

	// AllowedOrigins restricts WebSocket upgrades. Empty allows same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// CRMConfig contains the CRM collaborator settings.
type CRMConfig struct {
	BaseURL        string `json:"baseURL,omitempty" env:"BASE_URL"`
	APIKey         string `json:"apiKey,omitempty" env:"API_KEY"`
	APISecret      string `json:"apiSecret,omitempty" env:"API_SECRET"`
	Timeout        string `json:"timeout,omitempty" env:"TIMEOUT"`
	MetadataMethod string `json:"metadataMethod,omitempty" env:"METADATA_METHOD"`
	LeadsMethod    string `json:"leadsMethod,omitempty" env:"LEADS_METHOD"`
}

// MetadataConfig selects where option sets come from.
type MetadataConfig struct {
	// Source is crm, embedded or s3.
	Source string `json:"source,omitempty" env:"SOURCE"`

	// Fallback is embedded or s3. It is used when Source fails.
	Fallback string `json:"fallback,omitempty" env:"FALLBACK"`

	S3 S3Config `json:"s3" envPrefix:"S3_"`
}

// S3Config locates a defaults document in object storage.
type S3Config struct {
	Bucket string `json:"bucket,omitempty" env:"BUCKET"`
	Key    string `json:"key,omitempty" env:"KEY"`
	Region string `json:"region,omitempty" env:"REGION"`

	// Endpoint overrides the S3 endpoint (MinIO, LocalStack).
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`
}

// FormsConfig points at extra form schema documents.
type FormsConfig struct {
	// Dir holds *.yaml schemas loaded on top of the built-in ones.
	Dir string `json:"dir,omitempty" env:"DIR"`
}

// LeadsConfig bounds the leads listing.
type LeadsConfig struct {
	DefaultPageSize int `json:"defaultPageSize,omitempty" env:"DEFAULT_PAGE_SIZE"`
	MaxPageSize     int `json:"maxPageSize,omitempty" env:"MAX_PAGE_SIZE"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level,omitempty" env:"LEVEL"`
	Format string `json:"format,omitempty" env:"FORMAT"`
}

// TracingConfig controls OpenTelemetry export. Tracing is off unless an
// endpoint is set.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL (e.g., "http://otel:4318").
	Endpoint string `json:"endpoint,omitempty" env:"ENDPOINT"`

	// Disabled turns export off even when Endpoint is set.
	Disabled bool `json:"disabled,omitempty" env:"DISABLED"`

	ServiceName string `json:"serviceName,omitempty" env:"SERVICE_NAME"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the configuration file at path and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadFile reads configuration from path without environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{}
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.CodeConfigRead).
				WithDetail("No configuration file at " + path)
		}
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return errors.New(errors.CodeConfigParse).
			WithDetail("Failed to parse " + path + ": " + err.Error())
	}
	c.configPath = path
	return nil
}

// ApplyEnv overrides cfg with ADMISSIONS_* environment variables. Unset
// variables leave the loaded values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return errors.New(errors.CodeConfigEnv).Wrap(err)
	}
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "15s"
	}

	if c.CRM.Timeout == "" {
		c.CRM.Timeout = DefaultCRMTimeout
	}
	if c.CRM.MetadataMethod == "" {
		c.CRM.MetadataMethod = DefaultMetadataMethod
	}
	if c.CRM.LeadsMethod == "" {
		c.CRM.LeadsMethod = DefaultLeadsMethod
	}

	if c.Metadata.Source == "" {
		if c.CRM.BaseURL != "" {
			c.Metadata.Source = SourceCRM
		} else {
			c.Metadata.Source = SourceEmbedded
		}
	}
	if c.Metadata.Fallback == "" {
		c.Metadata.Fallback = SourceEmbedded
	}
	if c.Metadata.S3.Key == "" {
		c.Metadata.S3.Key = "defaults.json"
	}

	if c.Leads.DefaultPageSize == 0 {
		c.Leads.DefaultPageSize = 20
	}
	if c.Leads.MaxPageSize == 0 {
		c.Leads.MaxPageSize = 100
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "admissions"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	fields := make(map[string]string)

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		fields["server.port"] = "must be between 0 and 65535"
	}
	if _, err := time.ParseDuration(c.Server.ShutdownTimeout); err != nil {
		fields["server.shutdownTimeout"] = "not a duration"
	}
	if _, err := time.ParseDuration(c.CRM.Timeout); err != nil {
		fields["crm.timeout"] = "not a duration"
	}
	if c.CRM.BaseURL != "" {
		u, err := url.Parse(c.CRM.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			fields["crm.baseURL"] = "must be an absolute URL"
		}
	}

	needsCRM := c.Metadata.Source == SourceCRM
	needsS3 := c.Metadata.Source == SourceS3 || c.Metadata.Fallback == SourceS3
	switch c.Metadata.Source {
	case SourceCRM, SourceEmbedded, SourceS3:
	default:
		fields["metadata.source"] = "must be crm, embedded or s3"
	}
	switch c.Metadata.Fallback {
	case SourceEmbedded, SourceS3:
	default:
		fields["metadata.fallback"] = "must be embedded or s3"
	}
	if needsCRM && c.CRM.BaseURL == "" {
		fields["crm.baseURL"] = "required when metadata.source is crm"
	}
	if needsS3 && c.Metadata.S3.Bucket == "" {
		fields["metadata.s3.bucket"] = "required when s3 is used"
	}

	if c.Leads.DefaultPageSize < 1 || c.Leads.DefaultPageSize > c.Leads.MaxPageSize {
		fields["leads.defaultPageSize"] = "must be between 1 and leads.maxPageSize"
	}
	if _, ok := parseLevel(c.Log.Level); !ok {
		fields["log.level"] = "must be debug, info, warn or error"
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		fields["log.format"] = "must be json or text"
	}

	if c.Tracing.Endpoint != "" {
		u, err := url.Parse(c.Tracing.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			fields["tracing.endpoint"] = "must be an absolute URL"
		}
	}

	if len(fields) > 0 {
		return errors.New(errors.CodeConfigInvalid).WithFields(fields)
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// CRMTimeout returns the parsed CRM timeout, or the default when invalid.
func (c *Config) CRMTimeout() time.Duration {
	return durationOr(c.CRM.Timeout, 10*time.Second)
}

// ShutdownTimeout returns the parsed graceful shutdown timeout.
func (c *Config) ShutdownTimeout() time.Duration {
	return durationOr(c.Server.ShutdownTimeout, 15*time.Second)
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	lvl, _ := parseLevel(c.Log.Level)
	return lvl
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}
