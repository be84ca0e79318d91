package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var DefaultConfigPaths = []string{
	"/app/config/config.yml",
	"/app/config/config.example.yml",
	"./.dealtrail/config/config.yml",
	"./.dealtrail/config/config.example.yml",
}

// ParseConfig loads the first readable file of DefaultConfigPaths.
func ParseConfig() (Summary, error) {
	return ParseConfigFrom(DefaultConfigPaths...)
}

func ParseConfigFrom(paths ...string) (Summary, error) {
	var (
		cfg  Summary
		err  error
		data []byte
	)

	for _, path := range paths {
		slog.Debug("config: trying path", "path", path)
		data, err = os.ReadFile(path)
		if err == nil {
			slog.Info("config: loaded", "path", path)
			break
		}
		slog.Debug("config: path unavailable", "path", path, "error", err)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to load config from any path: %w", err)
	}

	cfg, err = Parse(data)
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes YAML, applies environment overrides and defaults, then
// validates the result.
func Parse(data []byte) (Summary, error) {
	var cfg Summary
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("yaml.Unmarshal: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

type Summary struct {
	Service ServiceConfig `yaml:"service"`
	Log     LogConfig     `yaml:"log"`
	Drivers struct {
		Db     DatabaseConfig `yaml:"db"`
		Output OutputConfig   `yaml:"output"`
	} `yaml:"drivers"`
	Producer   ProducerConfig   `yaml:"producer"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
	Registry   RegistryConfig   `yaml:"registry"`
	Automation AutomationConfig `yaml:"automation"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Schema     SchemaConfig     `yaml:"-"`
}

// ServiceConfig holds the API ports; /metrics and /healthz share HTTPPort.
type ServiceConfig struct {
	HTTPPort uint16 `yaml:"http_port"`
	GRPCPort uint16 `yaml:"grpc_port"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SchemaConfig is filled by the schema generator at start-up.
type SchemaConfig struct {
	TableNames                 []string
	CreationTime               time.Time
	ChangelogTableNames        map[string]string
	ReplicationStatusTableName string
	DlqTableName               string
}

type ProducerConfig struct {
	Period      time.Duration `yaml:"period"`
	StopOnError bool          `yaml:"stop_on_error"`
}

type ConsumerConfig struct {
	MaxTasksBatch int           `yaml:"max_tasks_batch"`
	MaxBatchWait  time.Duration `yaml:"max_batch_wait"`
	StopOnError   bool          `yaml:"stop_on_error"`
	EnableDLQ     bool          `yaml:"enable_dlq"`
}

type DatabaseConfig struct {
	DriverName   string        `yaml:"driver_name"`
	Host         string        `yaml:"host"`
	Port         uint16        `yaml:"port"`
	User         string        `yaml:"user"`
	Password     string        `yaml:"password,omitempty"`
	Database     string        `yaml:"database"`
	SSLMode      string        `yaml:"ssl_mode"`
	Path         string        `yaml:"path"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	PingTimeout  time.Duration `yaml:"ping_timeout"`
	PingPeriod   time.Duration `yaml:"ping_period"`
	ChangeFeed   bool          `yaml:"change_feed"`
}

type OutputConfig struct {
	DriverName   string            `yaml:"driver_name"`
	TableChannel map[string]string `yaml:"table_channel"`
	Brokers      []string          `yaml:"brokers"`
	RedisAddr    string            `yaml:"redis_addr"`
	AMQPURL      string            `yaml:"amqp_url"`
	Exchange     string            `yaml:"exchange"`
}

type RegistryConfig struct {
	CatalogPath string `yaml:"catalog_path"`
	MinVersion  string `yaml:"min_version"`
}

type AutomationConfig struct {
	Enabled bool `yaml:"enabled"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRate  float64 `yaml:"sample_rate"`
	ServiceName string  `yaml:"service_name"`
}

func (c *Summary) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("DEALTRAIL_DB_HOST"); ok && v != "" {
		c.Drivers.Db.Host = v
	}
	if v, ok := lookup("DEALTRAIL_DB_PORT"); ok && v != "" {
		if port, err := strconv.ParseUint(v, 10, 16); err == nil {
			c.Drivers.Db.Port = uint16(port)
		} else {
			slog.Warn("config: ignoring DEALTRAIL_DB_PORT", "value", v, "error", err)
		}
	}
	if v, ok := lookup("DEALTRAIL_DB_PASSWORD"); ok && v != "" {
		c.Drivers.Db.Password = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Drivers.Output.Brokers = strings.Split(v, ",")
		slog.Info("config: kafka brokers from environment", "brokers", c.Drivers.Output.Brokers)
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Drivers.Output.RedisAddr = v
	}
	if v, ok := lookup("AMQP_URL"); ok && v != "" {
		c.Drivers.Output.AMQPURL = v
	}
	if v, ok := lookup("OTEL_EXPORTER_OTLP_ENDPOINT"); ok && v != "" {
		c.Tracing.Endpoint = v
	}
}

func (c *Summary) applyDefaults() {
	if c.Service.HTTPPort == 0 {
		c.Service.HTTPPort = 8080
	}
	if c.Service.GRPCPort == 0 {
		c.Service.GRPCPort = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Drivers.Db.DriverName == "" {
		c.Drivers.Db.DriverName = "postgres"
	}
	if c.Drivers.Db.PingTimeout == 0 {
		c.Drivers.Db.PingTimeout = 10 * time.Second
	}
	if c.Drivers.Db.PingPeriod == 0 {
		c.Drivers.Db.PingPeriod = time.Second
	}
	if c.Drivers.Output.DriverName == "" {
		c.Drivers.Output.DriverName = "console"
	}
	if c.Drivers.Output.Exchange == "" {
		c.Drivers.Output.Exchange = "dealtrail.changes"
	}
	if c.Producer.Period == 0 {
		c.Producer.Period = time.Second
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = 1
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "dealtrail"
	}
}

// Validate reports every problem found, joined.
func (c *Summary) Validate() error {
	var errs []error
	switch c.Drivers.Db.DriverName {
	case "postgres", "pg", "postgresql", "postgre", "pgx":
		if c.Drivers.Db.Host == "" {
			errs = append(errs, errors.New("drivers.db.host is required"))
		}
		if c.Drivers.Db.Database == "" {
			errs = append(errs, errors.New("drivers.db.database is required"))
		}
	case "sqlite", "sqlite3", "memory", "mem":
	default:
		errs = append(errs, fmt.Errorf("drivers.db.driver_name %q is not supported", c.Drivers.Db.DriverName))
	}
	switch c.Drivers.Output.DriverName {
	case "kafka":
		if len(c.Drivers.Output.Brokers) == 0 {
			errs = append(errs, errors.New("drivers.output.brokers is required for kafka"))
		}
	case "redis":
		if c.Drivers.Output.RedisAddr == "" {
			errs = append(errs, errors.New("drivers.output.redis_addr is required for redis"))
		}
	case "amqp", "rabbitmq":
		if c.Drivers.Output.AMQPURL == "" {
			errs = append(errs, errors.New("drivers.output.amqp_url is required for amqp"))
		}
	case "console", "hub":
	default:
		errs = append(errs, fmt.Errorf("drivers.output.driver_name %q is not supported", c.Drivers.Output.DriverName))
	}
	if c.Producer.Period < 0 {
		errs = append(errs, errors.New("producer.period must not be negative"))
	}
	if c.Consumer.MaxTasksBatch < 0 {
		errs = append(errs, errors.New("consumer.max_tasks_batch must not be negative"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, errors.New("tracing.sample_rate must be within [0, 1]"))
	}
	return errors.Join(errs...)
}
