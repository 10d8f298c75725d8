package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type CartStoreKind string

const (
	CartStoreMemory CartStoreKind = "memory"
	CartStoreSQLite CartStoreKind = "sqlite"
	CartStoreRedis  CartStoreKind = "redis"
	CartStoreMongo  CartStoreKind = "mongo"
)

type Config struct {
	AppEnv   string
	HTTPPort string
	GRPCPort string

	BackendURL     string
	BackendTimeout time.Duration
	CouponPath     string

	CartStore            CartStoreKind
	SQLitePath           string
	SQLiteMigrationsPath string
	RedisAddr            string
	RedisPassword        string
	MongoURI             string
	MongoDBName          string
	// CartCache puts Redis in front of the sqlite or mongo cart store.
	CartCache    bool
	CartCacheTTL time.Duration

	// Ledger is disabled when DBHost is empty.
	DBHost         string
	DBPort         int
	DBUser         string
	DBPassword     string
	DBName         string
	MigrationsPath string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTIssuer string

	DevicePlatform string
	PublicBaseURL  string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first if present; real environment variables
// win over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		GRPCPort: getEnv("GRPC_PORT", "50060"),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8000"),
		BackendTimeout: getDuration("BACKEND_TIMEOUT", 15*time.Second),
		CouponPath:     getEnv("COUPON_PATH", "/v1/checkout/apply_coupon"),

		CartStore:            CartStoreKind(strings.ToLower(getEnv("CART_STORE", string(CartStoreSQLite)))),
		SQLitePath:           getEnv("SQLITE_PATH", "carts.db"),
		SQLiteMigrationsPath: getEnv("SQLITE_MIGRATIONS_PATH", "internal/repository/migrations/sqlite"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		MongoURI:             getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:          getEnv("MONGO_DB_NAME", "cartdb"),
		CartCache:            getBool("CART_CACHE", false),
		CartCacheTTL:         getDuration("CART_CACHE_TTL", 30*24*time.Hour),

		DBHost:         getEnv("DB_HOST", ""),
		DBPort:         getInt("DB_PORT", 5432),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "checkout"),
		MigrationsPath: getEnv("MIGRATIONS_PATH", "internal/repository/migrations/postgres"),

		KafkaBrokers: getList("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "checkout-outcomes"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", "storefront"),

		DevicePlatform: getEnv("DEVICE_PLATFORM", "android"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		SessionTTL:           getDuration("SESSION_TTL", 2*time.Hour),
		SessionSweepInterval: getDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),

		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "prod" || c.AppEnv == "production"
}

func (c *Config) LedgerEnabled() bool {
	return c.DBHost != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
