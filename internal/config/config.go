package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every setting the API needs. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	Port string

	Store struct {
		Driver string // postgres or memory
	}
	DB struct {
		Host     string
		User     string
		Password string
		Name     string
		Port     string
		SSLMode  string
	}
	Redis struct {
		URL string
	}

	Auth struct {
		UserSecret   string
		DriverSecret string
		AdminSecret  string
		TokenTTL     time.Duration
	}

	Bidding struct {
		LockWindow     time.Duration
		CeilingPercent float64
	}

	Maps struct {
		APIKey string
	}
	Firebase struct {
		ServiceAccountPath string
	}
	AWS struct {
		Region    string
		AccessKey string
		SecretKey string
		Bucket    string
	}

	ReceiptDir    string
	PublicBaseURL string
	CORSOrigins   []string

	Log struct {
		Level  string
		Format string
	}
}

// Load reads the environment. A missing .env file is not an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: ignoring .env: %v", err)
	}

	var cfg Config
	cfg.Port = envOrDefault("PORT", "8080")
	cfg.Store.Driver = strings.ToLower(envOrDefault("STORE_DRIVER", "postgres"))

	cfg.DB.Host = envOrDefault("DB_HOST", "localhost")
	cfg.DB.User = envOrDefault("DB_USER", "postgres")
	cfg.DB.Password = os.Getenv("DB_PASSWORD")
	cfg.DB.Name = envOrDefault("DB_NAME", "mooveit")
	cfg.DB.Port = envOrDefault("DB_PORT", "5432")
	cfg.DB.SSLMode = envOrDefault("DB_SSLMODE", "disable")

	cfg.Redis.URL = os.Getenv("REDIS_URL")

	cfg.Auth.UserSecret = os.Getenv("JWT_USER_SECRET")
	cfg.Auth.DriverSecret = os.Getenv("JWT_DRIVER_SECRET")
	cfg.Auth.AdminSecret = os.Getenv("JWT_ADMIN_SECRET")
	cfg.Auth.TokenTTL = time.Duration(envOrDefaultInt("TOKEN_TTL_HOURS", 24*7)) * time.Hour

	cfg.Bidding.LockWindow = time.Duration(envOrDefaultInt("BIDDING_LOCK_HOURS", 24)) * time.Hour
	cfg.Bidding.CeilingPercent = envOrDefaultFloat("BID_CEILING_PERCENT", 115)

	cfg.Maps.APIKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	cfg.Firebase.ServiceAccountPath = os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")

	cfg.AWS.Region = os.Getenv("AWS_REGION")
	cfg.AWS.AccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.AWS.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	cfg.AWS.Bucket = os.Getenv("AWS_S3_BUCKET")

	cfg.ReceiptDir = envOrDefault("RECEIPT_DIR", "./receipts")
	cfg.PublicBaseURL = strings.TrimRight(envOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/")
	cfg.CORSOrigins = splitList(envOrDefault("CORS_ORIGINS", "*"))

	cfg.Log.Level = envOrDefault("LOG_LEVEL", "info")
	cfg.Log.Format = envOrDefault("LOG_FORMAT", "text")

	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Store.Driver != "postgres" && c.Store.Driver != "memory" {
		return fmt.Errorf("config: STORE_DRIVER must be postgres or memory, got %q", c.Store.Driver)
	}
	for name, v := range map[string]string{
		"JWT_USER_SECRET":   c.Auth.UserSecret,
		"JWT_DRIVER_SECRET": c.Auth.DriverSecret,
		"JWT_ADMIN_SECRET":  c.Auth.AdminSecret,
	} {
		if v == "" {
			return fmt.Errorf("config: %s is required", name)
		}
	}
	if c.Auth.UserSecret == c.Auth.DriverSecret || c.Auth.UserSecret == c.Auth.AdminSecret || c.Auth.DriverSecret == c.Auth.AdminSecret {
		return fmt.Errorf("config: JWT secrets must be distinct per role")
	}
	if c.Bidding.LockWindow < 0 {
		return fmt.Errorf("config: BIDDING_LOCK_HOURS must not be negative")
	}
	if c.Bidding.CeilingPercent < 100 {
		return fmt.Errorf("config: BID_CEILING_PERCENT must be at least 100")
	}
	return nil
}

// DSN builds the postgres connection string in the key=value form gorm's
// postgres driver accepts.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.DB.Host, c.DB.User, c.DB.Password, c.DB.Name, c.DB.Port, c.DB.SSLMode,
	)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
