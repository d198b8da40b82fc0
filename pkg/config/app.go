package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment override, e.g. WORDBRIDGE_SERVER_PORT.
const EnvPrefix = "WORDBRIDGE"

// AppConfig is the configuration shared by the wordbridge binaries.
type AppConfig struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Channel       ChannelConfig       `yaml:"channel" json:"channel"`
	Topics        TopicsConfig        `yaml:"topics" json:"topics"`
	Frontend      FrontendConfig      `yaml:"frontend" json:"frontend"`
	Backend       BackendConfig       `yaml:"backend" json:"backend"`
	Broker        BrokerConfig        `yaml:"broker" json:"broker"`
	Log           LogConfig           `yaml:"log" json:"log"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	Host            string        `yaml:"host" json:"host"`
	PublicDir       string        `yaml:"public_dir" json:"public_dir"`
	MaxInFlight     int           `yaml:"max_in_flight" json:"max_in_flight"`
	MaxBodyBytes    int           `yaml:"max_body_bytes" json:"max_body_bytes"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ChannelConfig selects and configures the message channel.
type ChannelConfig struct {
	Kind          string        `yaml:"kind" json:"kind"`
	URL           string        `yaml:"url" json:"url"`
	Prefix        string        `yaml:"prefix" json:"prefix"`
	Durable       string        `yaml:"durable" json:"durable"`
	MaxAge        time.Duration `yaml:"max_age" json:"max_age"`
	AckWait       time.Duration `yaml:"ack_wait" json:"ack_wait"`
	ReconnectWait time.Duration `yaml:"reconnect_wait" json:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects" json:"max_reconnects"`
	MailboxSize   int           `yaml:"mailbox_size" json:"mailbox_size"`
}

// TopicsConfig names the two topics of the bridge.
type TopicsConfig struct {
	Publish   string `yaml:"publish" json:"publish"`
	Subscribe string `yaml:"subscribe" json:"subscribe"`
}

// FrontendConfig configures the HTTP side of the bridge.
type FrontendConfig struct {
	Origin      string        `yaml:"origin" json:"origin"`
	ReplyPolicy string        `yaml:"reply_policy" json:"reply_policy"`
	ReplyLimit  int           `yaml:"reply_limit" json:"reply_limit"`
	ReplyMaxAge time.Duration `yaml:"reply_max_age" json:"reply_max_age"`
	// AuthSecret enables HS256 bearer tokens on /rest when set.
	AuthSecret string `yaml:"auth_secret" json:"auth_secret"`
}

// BackendConfig configures the transform worker.
type BackendConfig struct {
	Origin    string        `yaml:"origin" json:"origin"`
	Queue     string        `yaml:"queue" json:"queue"`
	Workers   int           `yaml:"workers" json:"workers"`
	QueueSize int           `yaml:"queue_size" json:"queue_size"`
	Delay     time.Duration `yaml:"delay" json:"delay"`
}

// BrokerConfig configures the embedded broker of the all-in-one binary.
type BrokerConfig struct {
	Embedded  bool   `yaml:"embedded" json:"embedded"`
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	JetStream bool   `yaml:"jetstream" json:"jetstream"`
	StoreDir  string `yaml:"store_dir" json:"store_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics        bool    `yaml:"metrics" json:"metrics"`
	MetricsPath    string  `yaml:"metrics_path" json:"metrics_path"`
	TraceExporter  string  `yaml:"trace_exporter" json:"trace_exporter"`
	TraceEndpoint  string  `yaml:"trace_endpoint" json:"trace_endpoint"`
	TraceSample    float64 `yaml:"trace_sample" json:"trace_sample"`
	ServiceVersion string  `yaml:"service_version" json:"service_version"`
	Environment    string  `yaml:"environment" json:"environment"`
}

// Default returns the configuration used when no file or env overrides it.
func Default() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Port:            3000,
			PublicDir:       "public",
			MaxInFlight:     1000,
			MaxBodyBytes:    1 << 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Channel: ChannelConfig{
			Kind:          "nats",
			URL:           "nats://127.0.0.1:4222",
			Prefix:        "wordbridge",
			Durable:       "mqlight_sample_subscription",
			MaxAge:        time.Minute,
			AckWait:       30 * time.Second,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
			MailboxSize:   1024,
		},
		Topics: TopicsConfig{
			Publish:   "mqlight/sample/words",
			Subscribe: "mqlight/sample/wordsuppercase",
		},
		Frontend: FrontendConfig{
			Origin:      "Go",
			ReplyPolicy: "stack",
		},
		Backend: BackendConfig{
			Queue:     "wordbridge-backend",
			Workers:   4,
			QueueSize: 1024,
			Delay:     500 * time.Millisecond,
		},
		Broker: BrokerConfig{
			Host:     "127.0.0.1",
			Port:     4222,
			StoreDir: "data/jetstream",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics:       true,
			MetricsPath:   "/metrics",
			TraceExporter: "none",
			TraceSample:   1.0,
			Environment:   "development",
		},
	}
}

// LoadApp builds the configuration: defaults, then the file at path (if it
// exists), then WORDBRIDGE_* variables, then the short legacy variables
// PORT, VCAP_APP_PORT, BROKER_URL and NATS_URL.
func LoadApp(path string) (AppConfig, error) {
	cfg := Default()

	if _, err := LoadOptional(path, &cfg); err != nil {
		return cfg, err
	}
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := applyLegacyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(&cfg, AppValidators()...); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyLegacyEnv(cfg *AppConfig) error {
	for _, key := range []string{"PORT", "VCAP_APP_PORT"} {
		if v := os.Getenv(key); v != "" {
			var port int
			if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			cfg.Server.Port = port
		}
	}
	for _, key := range []string{"NATS_URL", "BROKER_URL"} {
		if v := os.Getenv(key); v != "" {
			cfg.Channel.URL = v
		}
	}
	return nil
}

// AppValidators returns the validators LoadApp applies.
func AppValidators() []Validator {
	return []Validator{
		RequiredFields("Topics.Publish", "Topics.Subscribe", "Channel.Kind"),
		OneOfValidator("Channel.Kind", "memory", "nats", "jetstream"),
		OneOfValidator("Frontend.ReplyPolicy", "stack", "lifo", "latest", "overwrite"),
		OneOfValidator("Observability.TraceExporter", "none", "stdout", "zipkin", "jaeger"),
		RangeValidator("Server.Port", 0, 65535),
		RangeValidator("Backend.Workers", 1, 1024),
		RangeValidator("Observability.TraceSample", 0, 1),
		ValidatorFunc(func(c interface{}) error {
			cfg := c.(*AppConfig)
			if strings.Trim(cfg.Topics.Publish, "/") == strings.Trim(cfg.Topics.Subscribe, "/") {
				return fmt.Errorf("publish and subscribe topics must differ")
			}
			return nil
		}),
	}
}
