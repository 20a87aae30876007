// Package config loads the engine's configuration: viper-backed, reading
// defaults, an optional config file, and environment-variable overrides,
// in the teacher's three-layer precedence order.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine.
type Config struct {
	Environment string       `mapstructure:"environment"`
	LogLevel    string       `mapstructure:"log_level"`
	Server      ServerConfig `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig  `mapstructure:"redis"`
	ILP         ILPConfig    `mapstructure:"ilp"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Workers     WorkersConfig `mapstructure:"workers"`
	Admin       AdminConfig  `mapstructure:"admin"`
}

// AdminConfig secures the internal/api/admin HTTP surface.
type AdminConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ILPConfig carries spec.md §6's recognized Environment block: the
// engine's own ILP address space, the Open Payments endpoints it serves
// and calls, quote/withdrawal policy, the exchange-rates feed, and the
// signing material used on outbound remote calls.
type ILPConfig struct {
	ILPAddress              string        `mapstructure:"ilp_address"`
	OpenPaymentsURL         string        `mapstructure:"open_payments_url"`
	WalletAddressURL        string        `mapstructure:"wallet_address_url"`
	AuthServerGrantURL      string        `mapstructure:"auth_server_grant_url"`
	QuoteLifespan           time.Duration `mapstructure:"quote_lifespan_ms"`
	Slippage                float64       `mapstructure:"slippage"`
	WithdrawalThrottleDelay time.Duration `mapstructure:"withdrawal_throttle_delay_ms"`
	ExchangeRatesURL        string        `mapstructure:"exchange_rates_url"`
	ExchangeRatesLifetime   time.Duration `mapstructure:"exchange_rates_lifetime_ms"`
	StreamSecret            string        `mapstructure:"stream_secret"` // base64, decodes to 32 bytes
	KeyID                   string        `mapstructure:"key_id"`
	PrivateKey              string        `mapstructure:"private_key"`
}

// StreamSecretBytes decodes the configured base64 stream secret.
func (c ILPConfig) StreamSecretBytes() ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(c.StreamSecret)
	if err != nil {
		return nil, fmt.Errorf("stream_secret is not valid base64: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("stream_secret must decode to 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// RateLimitConfig bounds the per-peer packet-rate and throughput tiers
// pkg/ratelimit enforces in pipeline stages 5/6/10.
type RateLimitConfig struct {
	IncomingPacketRatePerSec int64 `mapstructure:"incoming_packet_rate_per_sec"`
	IncomingThroughputPerSec int64 `mapstructure:"incoming_throughput_per_sec"`
	OutgoingThroughputPerSec int64 `mapstructure:"outgoing_throughput_per_sec"`
}

// WorkersConfig tunes the background workers' tick cadence and batch
// sizes, overriding each worker package's own DefaultConfig.
type WorkersConfig struct {
	OutgoingPaymentIntervalSeconds int    `mapstructure:"outgoing_payment_interval_seconds"`
	IncomingExpiryIntervalSeconds  int    `mapstructure:"incoming_expiry_interval_seconds"`
	WalletAddressIntervalSeconds   int    `mapstructure:"wallet_address_interval_seconds"`
	TransferSweepIntervalSeconds   int    `mapstructure:"transfer_sweep_interval_seconds"`
	WebhookIntervalSeconds         int    `mapstructure:"webhook_interval_seconds"`
	WebhookURL                     string `mapstructure:"webhook_url"`
	BatchSize                      int    `mapstructure:"batch_size"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "ilp_engine")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	viper.SetDefault("ilp.ilp_address", "test.ilpcore")
	viper.SetDefault("ilp.quote_lifespan_ms", int64(5*time.Minute/time.Millisecond))
	viper.SetDefault("ilp.slippage", 0.01)
	viper.SetDefault("ilp.withdrawal_throttle_delay_ms", int64(0))
	viper.SetDefault("ilp.exchange_rates_lifetime_ms", int64(15*time.Minute/time.Millisecond))

	viper.SetDefault("rate_limit.incoming_packet_rate_per_sec", 1000)
	viper.SetDefault("rate_limit.incoming_throughput_per_sec", 1_000_000)
	viper.SetDefault("rate_limit.outgoing_throughput_per_sec", 1_000_000)

	viper.SetDefault("workers.outgoing_payment_interval_seconds", 1)
	viper.SetDefault("workers.incoming_expiry_interval_seconds", 30)
	viper.SetDefault("workers.wallet_address_interval_seconds", 60)
	viper.SetDefault("workers.transfer_sweep_interval_seconds", 60)
	viper.SetDefault("workers.webhook_interval_seconds", 2)
	viper.SetDefault("workers.batch_size", 100)

	viper.SetDefault("admin.jwt_secret", "")
}

func overrideFromEnv() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("server.port", p)
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		viper.Set("database.url", dbURL)
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		viper.Set("redis.host", redisURL)
	}

	if v := os.Getenv("ILP_ADDRESS"); v != "" {
		viper.Set("ilp.ilp_address", v)
	}
	if v := os.Getenv("OPEN_PAYMENTS_URL"); v != "" {
		viper.Set("ilp.open_payments_url", v)
	}
	if v := os.Getenv("WALLET_ADDRESS_URL"); v != "" {
		viper.Set("ilp.wallet_address_url", v)
	}
	if v := os.Getenv("AUTH_SERVER_GRANT_URL"); v != "" {
		viper.Set("ilp.auth_server_grant_url", v)
	}
	if v := os.Getenv("QUOTE_LIFESPAN_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			viper.Set("ilp.quote_lifespan_ms", ms)
		}
	}
	if v := os.Getenv("SLIPPAGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			viper.Set("ilp.slippage", f)
		}
	}
	if v := os.Getenv("WITHDRAWAL_THROTTLE_DELAY_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			viper.Set("ilp.withdrawal_throttle_delay_ms", ms)
		}
	}
	if v := os.Getenv("EXCHANGE_RATES_URL"); v != "" {
		viper.Set("ilp.exchange_rates_url", v)
	}
	if v := os.Getenv("EXCHANGE_RATES_LIFETIME_MS"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			viper.Set("ilp.exchange_rates_lifetime_ms", ms)
		}
	}
	if v := os.Getenv("STREAM_SECRET"); v != "" {
		viper.Set("ilp.stream_secret", v)
	}
	if v := os.Getenv("KEY_ID"); v != "" {
		viper.Set("ilp.key_id", v)
	}
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		viper.Set("ilp.private_key", v)
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		viper.Set("workers.webhook_url", v)
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		viper.Set("admin.jwt_secret", v)
	}
}

func validate(config *Config) error {
	if config.Database.URL == "" && (config.Database.Host == "" || config.Database.Name == "") {
		return fmt.Errorf("database configuration is incomplete")
	}
	if config.ILP.ILPAddress == "" {
		return fmt.Errorf("ilp.ilp_address is required")
	}
	if config.ILP.StreamSecret == "" {
		return fmt.Errorf("ilp.stream_secret is required")
	}
	if _, err := config.ILP.StreamSecretBytes(); err != nil {
		return err
	}
	if config.ILP.Slippage < 0 || config.ILP.Slippage >= 1 {
		return fmt.Errorf("ilp.slippage must be in [0, 1)")
	}
	if config.Admin.JWTSecret == "" {
		return fmt.Errorf("admin.jwt_secret is required")
	}
	return nil
}
