package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite3"
	StoreMemory   = "memory"
)

// Config is the runtime configuration of the chat service.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`

	StoreDriver  string        `yaml:"store_driver"`
	DSN          string        `yaml:"dsn"`
	StoreTimeout time.Duration `yaml:"store_timeout"`

	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`

	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Environment  string `yaml:"environment"`

	// AuthSecret signs bearer tokens. Empty trusts the X-User-ID header,
	// which is only acceptable behind an authenticating gateway.
	AuthSecret string `yaml:"auth_secret"`

	MaxTextLength int  `yaml:"max_text_length"`
	DebugRoutes   bool `yaml:"debug_routes"`

	WS WSConfig `yaml:"ws"`
}

// WSConfig tunes websocket sessions.
type WSConfig struct {
	SendQueueSize   int           `yaml:"send_queue_size"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	PongWait        time.Duration `yaml:"pong_wait"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:      ":8083",
		GRPCAddr:      ":9083",
		LogLevel:      "info",
		StoreDriver:   StoreMemory,
		StoreTimeout:  5 * time.Second,
		AMQPExchange:  "chat.events",
		ServiceName:   "cipher-chat",
		Environment:   "local",
		MaxTextLength: 4000,
		WS: WSConfig{
			SendQueueSize:   64,
			WriteTimeout:    10 * time.Second,
			PongWait:        60 * time.Second,
			MaxMessageBytes: 64 << 10,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// environment variables and command-line flags, in that order.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := pflag.NewFlagSet("cipher-chat", pflag.ContinueOnError)
	configPath := fs.String("config", getEnv("CHAT_CONFIG", ""), "path to a YAML config file")
	httpAddr := fs.String("http-addr", "", "HTTP listen address")
	grpcAddr := fs.String("grpc-addr", "", "gRPC health listen address")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	storeDriver := fs.String("store", "", "message store driver (postgres, sqlite3, memory)")
	dsn := fs.String("dsn", "", "message store DSN")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		if err := cfg.loadFile(*configPath); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if fs.Changed("http-addr") {
		cfg.HTTPAddr = *httpAddr
	}
	if fs.Changed("grpc-addr") {
		cfg.GRPCAddr = *grpcAddr
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if fs.Changed("store") {
		cfg.StoreDriver = *storeDriver
	}
	if fs.Changed("dsn") {
		cfg.DSN = *dsn
	}

	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if port := getEnv("PORT", ""); port != "" {
		c.HTTPAddr = ":" + port
	}
	c.HTTPAddr = getEnv("HTTP_ADDR", c.HTTPAddr)
	c.GRPCAddr = getEnv("GRPC_ADDR", c.GRPCAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.StoreDriver = getEnv("STORE_DRIVER", c.StoreDriver)
	c.DSN = getEnv("DATABASE_URL", c.DSN)
	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.OTLPEndpoint)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.AuthSecret = getEnv("AUTH_SECRET", c.AuthSecret)
	if debug := getEnv("DEBUG_ROUTES", ""); debug != "" {
		enabled, err := strconv.ParseBool(debug)
		if err != nil {
			return fmt.Errorf("DEBUG_ROUTES: %w", err)
		}
		c.DebugRoutes = enabled
	}
	if origins := getEnv("WS_ALLOWED_ORIGINS", ""); origins != "" {
		c.WS.AllowedOrigins = splitList(origins)
	}

	var err error
	if c.StoreTimeout, err = durationEnv("STORE_TIMEOUT", c.StoreTimeout); err != nil {
		return err
	}
	if c.WS.WriteTimeout, err = durationEnv("WS_WRITE_TIMEOUT", c.WS.WriteTimeout); err != nil {
		return err
	}
	if c.WS.PongWait, err = durationEnv("WS_PONG_WAIT", c.WS.PongWait); err != nil {
		return err
	}
	if c.MaxTextLength, err = intEnv("MAX_TEXT_LENGTH", c.MaxTextLength); err != nil {
		return err
	}
	if c.WS.SendQueueSize, err = intEnv("WS_SEND_QUEUE", c.WS.SendQueueSize); err != nil {
		return err
	}
	if raw := getEnv("WS_MAX_MESSAGE_BYTES", ""); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("WS_MAX_MESSAGE_BYTES: %w", err)
		}
		c.WS.MaxMessageBytes = n
	}
	return nil
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case StorePostgres, StoreSQLite:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("store %q requires a DSN", c.StoreDriver))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http address is required"))
	}
	if c.MaxTextLength <= 0 {
		errs = append(errs, errors.New("max text length must be positive"))
	}
	if c.WS.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("websocket max message bytes must be positive"))
	}
	if c.WS.PongWait <= 0 || c.WS.WriteTimeout <= 0 {
		errs = append(errs, errors.New("websocket timeouts must be positive"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
