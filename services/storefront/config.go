package main

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config reúne a configuração do serviço, lida de variáveis de ambiente
type Config struct {
	Env         string `env:"ENV" env-default:"local"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`
	ServiceName string `env:"SERVICE_NAME" env-default:"storefront-service"`
	PublicURL   string `env:"PUBLIC_URL" env-default:"http://localhost:3000"`

	HTTP     HTTPConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Stripe   StripeConfig
	SendGrid SendGridConfig
	Chat     ChatConfig
	Assets   AssetsConfig
	OTel     OTelConfig
}

type HTTPConfig struct {
	Port         string        `env:"PORT" env-default:"8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" env-default:"30s"`
	MaxUploadMB  int64         `env:"HTTP_MAX_UPLOAD_MB" env-default:"10"`
}

type DatabaseConfig struct {
	User     string `env:"DATABASE_USER" env-default:"root"`
	Password string `env:"DATABASE_PASSWORD" env-default:"pass"`
	Host     string `env:"DATABASE_HOST" env-default:"localhost"`
	Port     string `env:"DATABASE_PORT" env-default:"5432"`
	Name     string `env:"DATABASE_NAME" env-default:"storefront_db"`
	MaxConns int32  `env:"DATABASE_MAX_CONNS" env-default:"10"`
}

// URL monta a DSN postgres usada pelo pgx, lib/pq e migrate
func (c DatabaseConfig) URL() string {
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=disable",
	}
	return dsn.String()
}

type RedisConfig struct {
	Addr    string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	PageTTL time.Duration `env:"REDIS_PAGE_TTL" env-default:"24h"`
}

type KafkaConfig struct {
	Brokers     []string      `env:"KAFKA_BROKERS" env-separator:","`
	OrdersTopic string        `env:"KAFKA_ORDERS_TOPIC" env-default:"storefront.orders"`
	Interval    time.Duration `env:"OUTBOX_INTERVAL" env-default:"500ms"`
	BatchSize   int           `env:"OUTBOX_BATCH_SIZE" env-default:"50"`
}

type StripeConfig struct {
	SecretKey       string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET"`
	Currency        string `env:"STRIPE_CURRENCY" env-default:"myr"`
	ShippingCountry string `env:"STRIPE_SHIPPING_COUNTRY" env-default:"MY"`
}

type SendGridConfig struct {
	APIKey    string        `env:"SENDGRID_API_KEY"`
	BaseURL   string        `env:"SENDGRID_BASE_URL" env-default:"https://api.sendgrid.com"`
	FromEmail string        `env:"SENDGRID_FROM_EMAIL" env-default:"store@rendunks.com"`
	FromName  string        `env:"SENDGRID_FROM_NAME" env-default:"Official Rendunks Store"`
	Timeout   time.Duration `env:"SENDGRID_TIMEOUT" env-default:"10s"`
}

type ChatConfig struct {
	URL     string        `env:"CHAT_URL" env-default:"http://localhost:8000/chat"`
	Timeout time.Duration `env:"CHAT_TIMEOUT" env-default:"60s"`
}

type AssetsConfig struct {
	PublicDir string `env:"PUBLIC_DIR" env-default:"public"`
}

type OTelConfig struct {
	Endpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4318"`
}

// LoadConfig carrega o .env (se existir) e lê a configuração do ambiente
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("ℹ️ no .env file found, relying on system envs")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return &cfg, nil
}
