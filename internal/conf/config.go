// Package conf loads and validates the service configuration from YAML
// files and environment variables via Viper.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the analytics service.
type Config struct {
	Environment string          `yaml:"environment" mapstructure:"environment"`
	Bus         BusConfig       `yaml:"bus" mapstructure:"bus"`
	Broker      BrokerConfig    `yaml:"broker" mapstructure:"broker"`
	Sink        SinkConfig      `yaml:"sink" mapstructure:"sink"`
	Warehouse   WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Alerting    AlertingConfig  `yaml:"alerting" mapstructure:"alerting"`
	Notify      NotifyConfig    `yaml:"notify" mapstructure:"notify"`
}

// BusConfig tunes the in-process event bus and its durable delivery retry.
type BusConfig struct {
	MaxAttempts int      `yaml:"maxattempts" mapstructure:"maxattempts"`
	BaseDelay   Duration `yaml:"basedelay" mapstructure:"basedelay"`
	TopicPrefix string   `yaml:"topicprefix" mapstructure:"topicprefix"`
}

// BrokerConfig configures the optional MQTT broker connection.
type BrokerConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	URL      string `yaml:"url" mapstructure:"url"`
	ClientID string `yaml:"clientid" mapstructure:"clientid"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	QoS      int    `yaml:"qos" mapstructure:"qos"`
}

// SinkConfig tunes warehouse batching.
type SinkConfig struct {
	MaxBatchSize  int      `yaml:"maxbatchsize" mapstructure:"maxbatchsize"`
	FlushInterval Duration `yaml:"flushinterval" mapstructure:"flushinterval"`
}

// WarehouseConfig selects and configures the warehouse database.
type WarehouseConfig struct {
	Driver string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "mysql"
	Path   string `yaml:"path" mapstructure:"path"`     // sqlite file path
	DSN    string `yaml:"dsn" mapstructure:"dsn"`       // mysql DSN
}

// AlertingConfig tunes rule evaluation and delivery retention.
type AlertingConfig struct {
	CheckInterval         Duration `yaml:"checkinterval" mapstructure:"checkinterval"`
	EqualTolerance        float64  `yaml:"equaltolerance" mapstructure:"equaltolerance"`
	DeliveryRetentionDays int      `yaml:"deliveryretentiondays" mapstructure:"deliveryretentiondays"`
}

// NotifyConfig configures the outbound notification channels.
type NotifyConfig struct {
	EmailEnabled  bool   `yaml:"emailenabled" mapstructure:"emailenabled"`
	EmailFrom     string `yaml:"emailfrom" mapstructure:"emailfrom"`
	ResendAPIKey  string `yaml:"resendapikey" mapstructure:"resendapikey"`
	SMSEnabled    bool   `yaml:"smsenabled" mapstructure:"smsenabled"`
	SMSGatewayURL string `yaml:"smsgatewayurl" mapstructure:"smsgatewayurl"`
}

// Load reads configuration from the given path (or the default search paths
// when empty), applies environment overrides, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/laundryao-analytics")
	}

	v.SetEnvPrefix("ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("bus.maxattempts", 3)
	v.SetDefault("bus.basedelay", "250ms")
	v.SetDefault("bus.topicprefix", "analytics")
	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.clientid", "laundryao-analytics")
	v.SetDefault("broker.qos", 1)
	v.SetDefault("sink.maxbatchsize", 500)
	v.SetDefault("sink.flushinterval", "10s")
	v.SetDefault("warehouse.driver", "sqlite")
	v.SetDefault("warehouse.path", "analytics.db")
	v.SetDefault("alerting.checkinterval", "1m")
	v.SetDefault("alerting.equaltolerance", 0.01)
	v.SetDefault("alerting.deliveryretentiondays", 90)
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	if c.Bus.MaxAttempts < 1 {
		return fmt.Errorf("bus.maxattempts must be at least 1, got %d", c.Bus.MaxAttempts)
	}
	if c.Sink.MaxBatchSize < 1 {
		return fmt.Errorf("sink.maxbatchsize must be at least 1, got %d", c.Sink.MaxBatchSize)
	}
	if c.Sink.FlushInterval.Std() < time.Second {
		return fmt.Errorf("sink.flushinterval must be at least 1s, got %s", c.Sink.FlushInterval.Std())
	}
	if c.Broker.Enabled && c.Broker.URL == "" {
		return errors.New("broker.url is required when the broker is enabled")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	switch c.Warehouse.Driver {
	case "sqlite":
		if c.Warehouse.Path == "" {
			return errors.New("warehouse.path is required for the sqlite driver")
		}
	case "mysql":
		if c.Warehouse.DSN == "" {
			return errors.New("warehouse.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown warehouse driver %q", c.Warehouse.Driver)
	}
	if c.Alerting.EqualTolerance < 0 {
		return fmt.Errorf("alerting.equaltolerance must not be negative, got %g", c.Alerting.EqualTolerance)
	}
	if c.Alerting.DeliveryRetentionDays < 1 {
		return fmt.Errorf("alerting.deliveryretentiondays must be at least 1, got %d", c.Alerting.DeliveryRetentionDays)
	}
	return nil
}
