package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// TripayConfig carries the gateway credentials. It is constructed once at
// startup and passed into the adapter explicitly so tests can swap the
// private key.
type TripayConfig struct {
	BaseURL      string `env:"BASE_URL" envDefault:"https://tripay.co.id/api-sandbox"`
	MerchantCode string `env:"MERCHANT_CODE"`
	APIKey       string `env:"API_KEY"`
	PrivateKey   string `env:"PRIVATE_KEY"`
	CallbackURL  string `env:"CALLBACK_URL"`
	ReturnURL    string `env:"RETURN_URL"`
}

// SMTPConfig carries outbound email settings
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     string `env:"PORT" envDefault:"587"`
	User     string `env:"USER"`
	Password string `env:"PASS"`
	From     string `env:"FROM"`
}

// WahaConfig carries the WhatsApp HTTP API settings
type WahaConfig struct {
	BaseURL string `env:"BASE_URL" envDefault:"http://waha:3000"`
	APIKey  string `env:"API_KEY"`
}

// Config is the full application configuration, parsed from the
// environment (load .env with godotenv first)
type Config struct {
	Env         string `env:"ENV" envDefault:"development"`
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	FirebaseCredentialsPath string `env:"FIREBASE_CREDENTIALS_PATH" envDefault:"./firebase-service-account.json"`

	Tripay TripayConfig `envPrefix:"TRIPAY_"`
	SMTP   SMTPConfig   `envPrefix:"SMTP_"`
	Waha   WahaConfig   `envPrefix:"WAHA_"`

	// Worker settings
	WorkerInterval time.Duration `env:"WORKER_INTERVAL" envDefault:"1m"`

	// Pending gateway transactions older than this are swept to expired
	TransactionTTL time.Duration `env:"TRANSACTION_TTL" envDefault:"48h"`
}

// Load parses the configuration from the environment
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
