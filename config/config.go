package config

import (
	"errors"
	"fmt"
	"os"
)

const defaultLemonSqueezyAPIURL = "https://api.lemonsqueezy.com/v1"

type Config struct {
	Port string

	DBConfig struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	RedisHost     string
	RedisPort     string
	RedisPassword string

	KafkaBroker string
	KafkaTopic  string

	LemonSqueezy struct {
		APIKey        string
		WebhookSecret string
		StoreID       string
		APIURL        string
	}
}

// LoadConfig reads the process environment once at startup. Components
// receive the resulting struct instead of reading env vars ad hoc.
func LoadConfig() *Config {
	cfg := &Config{}

	cfg.Port = getEnvOrDefault("PORT", "8084")

	cfg.DBConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvOrDefault("DB_PORT", "5432")
	cfg.DBConfig.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DBConfig.Password = getEnvOrDefault("DB_PASSWORD", "postgres")
	cfg.DBConfig.Name = getEnvOrDefault("DB_NAME", "checkoutdb")
	cfg.DBConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	cfg.RedisHost = getEnvOrDefault("REDIS_HOST", "localhost")
	cfg.RedisPort = getEnvOrDefault("REDIS_PORT", "6379")
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")

	cfg.KafkaBroker = getEnvOrDefault("KAFKA_BROKER", "localhost:9092")
	cfg.KafkaTopic = getEnvOrDefault("KAFKA_TOPIC", "order_events")

	cfg.LemonSqueezy.APIKey = os.Getenv("LEMON_SQUEEZY_API_KEY")
	cfg.LemonSqueezy.WebhookSecret = os.Getenv("LEMON_SQUEEZY_WEBHOOK_SECRET")
	cfg.LemonSqueezy.StoreID = getEnvOrDefault("LEMON_SQUEEZY_STORE_ID", "1")
	cfg.LemonSqueezy.APIURL = getEnvOrDefault("LEMON_SQUEEZY_API_URL", defaultLemonSqueezyAPIURL)

	return cfg
}

// Validate fails fast on missing provider credentials so a misconfigured
// deployment never silently rejects every webhook.
func (c *Config) Validate() error {
	if c.LemonSqueezy.APIKey == "" {
		return errors.New("LEMON_SQUEEZY_API_KEY is required")
	}
	if c.LemonSqueezy.WebhookSecret == "" {
		return errors.New("LEMON_SQUEEZY_WEBHOOK_SECRET is required")
	}
	return nil
}

func (c *Config) DBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
