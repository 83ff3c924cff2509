package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process configuration for both the API server and the
// settlement worker.
type Config struct {
	Port       string
	CORS       CORSConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Mpesa      MpesaConfig
	SMS        SMSConfig
	Temporal   TemporalConfig
	Kafka      KafkaConfig
	RabbitMQ   RabbitMQConfig
	Reconciler ReconcilerConfig
}

// CORSConfig lists the browser origins allowed to call the API with
// credentials.
type CORSConfig struct {
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns a lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

type JWTConfig struct {
	SecretKey string
}

// MpesaConfig holds Daraja API credentials. Environment is "sandbox" or
// "production".
type MpesaConfig struct {
	Environment     string
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackDomain  string
	CallbackPath    string
	VerifyCallbacks bool
	Timeout         time.Duration
}

// CallbackURL is the absolute URL handed to the gateway on every push.
func (c MpesaConfig) CallbackURL() string {
	return strings.TrimRight(c.CallbackDomain, "/") + c.CallbackPath
}

// SMSConfig selects the notification transport: "africastalking", "rabbitmq"
// or "none".
type SMSConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Username string
	SenderID string
	Queue    string
}

type TemporalConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

type KafkaConfig struct {
	Broker string
	Topic  string
}

// Enabled reports whether settlement events should be published.
func (c KafkaConfig) Enabled() bool {
	return c.Broker != "" && c.Topic != ""
}

type RabbitMQConfig struct {
	User     string
	Password string
	Host     string
	Port     string
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

type ReconcilerConfig struct {
	Interval    time.Duration
	StaleAfter  time.Duration
	BatchSize   int
	WorkerCount int
}

var envBindings = map[string]string{
	"port": "PORT",

	"cors.allowed_origins": "CORS_ALLOWED_ORIGINS",

	"database.host":              "DATABASE_HOST",
	"database.port":              "DATABASE_PORT",
	"database.user":              "DATABASE_USER",
	"database.password":          "DATABASE_PASSWORD",
	"database.name":              "DATABASE_NAME",
	"database.ssl_mode":          "DATABASE_SSL_MODE",
	"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"mpesa.env":              "MPESA_ENV",
	"mpesa.base_url":         "MPESA_BASE_URL",
	"mpesa.consumer_key":     "MPESA_CONSUMER_KEY",
	"mpesa.consumer_secret":  "MPESA_CONSUMER_SECRET",
	"mpesa.shortcode":        "MPESA_SHORTCODE",
	"mpesa.passkey":          "MPESA_PASSKEY",
	"mpesa.callback_domain":  "MPESA_CALLBACK_DOMAIN",
	"mpesa.callback_path":    "MPESA_CALLBACK_PATH",
	"mpesa.verify_callbacks": "MPESA_VERIFY_CALLBACKS",
	"mpesa.timeout":          "MPESA_TIMEOUT",

	"sms.provider":  "SMS_PROVIDER",
	"sms.base_url":  "SMS_BASE_URL",
	"sms.api_key":   "SMS_API_KEY",
	"sms.username":  "SMS_USERNAME",
	"sms.sender_id": "SMS_SENDERID",
	"sms.queue":     "SMS_QUEUE",

	"temporal.host_port":  "TEMPORAL_HOST_PORT",
	"temporal.namespace":  "TEMPORAL_NAMESPACE",
	"temporal.task_queue": "TEMPORAL_TASK_QUEUE",

	"kafka.broker": "KAFKA_BROKER",
	"kafka.topic":  "KAFKA_TOPIC",

	"rabbitmq.user":     "RABBITMQ_USER",
	"rabbitmq.password": "RABBITMQ_PASSWORD",
	"rabbitmq.host":     "RABBITMQ_HOST",
	"rabbitmq.port":     "RABBITMQ_PORT",

	"reconciler.interval":     "RECONCILER_INTERVAL",
	"reconciler.stale_after":  "RECONCILER_STALE_AFTER",
	"reconciler.batch_size":   "RECONCILER_BATCH_SIZE",
	"reconciler.worker_count": "RECONCILER_WORKER_COUNT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("cors.allowed_origins", "http://localhost:3000")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.name", "pabfc")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mpesa.env", "sandbox")
	v.SetDefault("mpesa.callback_path", "/api/v1/payments/mpesa/callback")
	v.SetDefault("mpesa.verify_callbacks", false)
	v.SetDefault("mpesa.timeout", 30*time.Second)

	v.SetDefault("sms.provider", "africastalking")
	v.SetDefault("sms.base_url", "https://api.africastalking.com")
	v.SetDefault("sms.queue", "sms.outbound")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "PAYMENT_SETTLEMENT_TASK_QUEUE")

	v.SetDefault("rabbitmq.host", "localhost")
	v.SetDefault("rabbitmq.port", "5672")

	v.SetDefault("reconciler.interval", 2*time.Minute)
	v.SetDefault("reconciler.stale_after", 5*time.Minute)
	v.SetDefault("reconciler.batch_size", 50)
	v.SetDefault("reconciler.worker_count", 5)
}

// Load reads .env (when present) and the environment into a validated Config.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			log.Printf("[CONFIG] Config file not found, using environment and defaults: %v", err)
		}
	}
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{
		Port: v.GetString("port"),
		CORS: CORSConfig{AllowedOrigins: splitList(v.GetString("cors.allowed_origins"))},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.ssl_mode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetString("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{SecretKey: v.GetString("jwt.secret_key")},
		Mpesa: MpesaConfig{
			Environment:     strings.ToLower(v.GetString("mpesa.env")),
			BaseURL:         v.GetString("mpesa.base_url"),
			ConsumerKey:     v.GetString("mpesa.consumer_key"),
			ConsumerSecret:  v.GetString("mpesa.consumer_secret"),
			ShortCode:       v.GetString("mpesa.shortcode"),
			PassKey:         v.GetString("mpesa.passkey"),
			CallbackDomain:  v.GetString("mpesa.callback_domain"),
			CallbackPath:    v.GetString("mpesa.callback_path"),
			VerifyCallbacks: v.GetBool("mpesa.verify_callbacks"),
			Timeout:         v.GetDuration("mpesa.timeout"),
		},
		SMS: SMSConfig{
			Provider: strings.ToLower(v.GetString("sms.provider")),
			BaseURL:  v.GetString("sms.base_url"),
			APIKey:   v.GetString("sms.api_key"),
			Username: v.GetString("sms.username"),
			SenderID: v.GetString("sms.sender_id"),
			Queue:    v.GetString("sms.queue"),
		},
		Temporal: TemporalConfig{
			HostPort:  v.GetString("temporal.host_port"),
			Namespace: v.GetString("temporal.namespace"),
			TaskQueue: v.GetString("temporal.task_queue"),
		},
		Kafka: KafkaConfig{
			Broker: v.GetString("kafka.broker"),
			Topic:  v.GetString("kafka.topic"),
		},
		RabbitMQ: RabbitMQConfig{
			User:     v.GetString("rabbitmq.user"),
			Password: v.GetString("rabbitmq.password"),
			Host:     v.GetString("rabbitmq.host"),
			Port:     v.GetString("rabbitmq.port"),
		},
		Reconciler: ReconcilerConfig{
			Interval:    v.GetDuration("reconciler.interval"),
			StaleAfter:  v.GetDuration("reconciler.stale_after"),
			BatchSize:   v.GetInt("reconciler.batch_size"),
			WorkerCount: v.GetInt("reconciler.worker_count"),
		},
	}

	if cfg.Mpesa.BaseURL == "" {
		cfg.Mpesa.BaseURL = "https://api.safaricom.co.ke"
		if cfg.Mpesa.Environment == "sandbox" {
			cfg.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
		}
	}
	return cfg
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimSuffix(part, "/"))
		}
	}
	return out
}

// Validate checks the settings every process needs to start.
func (c *Config) Validate() error {
	var errs []error
	if c.Mpesa.Environment != "sandbox" && c.Mpesa.Environment != "production" {
		errs = append(errs, fmt.Errorf("MPESA_ENV must be sandbox or production, got %q", c.Mpesa.Environment))
	}
	if c.Mpesa.ShortCode == "" || c.Mpesa.PassKey == "" {
		errs = append(errs, errors.New("MPESA_SHORTCODE and MPESA_PASSKEY are required"))
	}
	if c.Mpesa.ConsumerKey == "" || c.Mpesa.ConsumerSecret == "" {
		errs = append(errs, errors.New("MPESA_CONSUMER_KEY and MPESA_CONSUMER_SECRET are required"))
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if strings.Contains(origin, "*") {
			errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS must list exact origins, got %q", origin))
		}
	}
	if c.Mpesa.CallbackDomain == "" {
		errs = append(errs, errors.New("MPESA_CALLBACK_DOMAIN is required"))
	}
	switch c.SMS.Provider {
	case "africastalking":
		if c.SMS.APIKey == "" || c.SMS.Username == "" {
			errs = append(errs, errors.New("SMS_API_KEY and SMS_USERNAME are required for africastalking"))
		}
	case "rabbitmq", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown SMS_PROVIDER %q", c.SMS.Provider))
	}
	if c.Reconciler.WorkerCount <= 0 || c.Reconciler.BatchSize <= 0 {
		errs = append(errs, errors.New("reconciler batch size and worker count must be positive"))
	}
	return errors.Join(errs...)
}
