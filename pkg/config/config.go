package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Auth providers.
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

type Config struct {
	Port                    string `mapstructure:"PORT" validate:"required"`
	Env                     string `mapstructure:"ENV" validate:"required"`
	LogLevel                string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn warning error fatal panic"`
	StoreDriver             string `mapstructure:"STORE_DRIVER" validate:"oneof=postgres mongo memory"`
	PostgresConnStr         string `mapstructure:"POSTGRES_CONN_STR" validate:"required_if=StoreDriver postgres"`
	MongoURI                string `mapstructure:"MONGO_URI" validate:"required_if=StoreDriver mongo"`
	MongoDatabase           string `mapstructure:"MONGO_DATABASE" validate:"required_if=StoreDriver mongo"`
	RedisAddr               string `mapstructure:"REDIS_ADDR"`
	RedisPassword           string `mapstructure:"REDIS_PASSWORD"`
	RedisChannel            string `mapstructure:"REDIS_CHANNEL" validate:"required_with=RedisAddr"`
	AuthProvider            string `mapstructure:"AUTH_PROVIDER" validate:"oneof=jwt firebase"`
	JWTSecret               string `mapstructure:"JWT_SECRET" validate:"required_if=AuthProvider jwt"`
	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH" validate:"required_if=AuthProvider firebase"`
	ServiceToken            string `mapstructure:"SERVICE_TOKEN"`
	MetricsPort             string `mapstructure:"METRICS_PORT"`
	CacheTTL                time.Duration
	CacheSweepInterval      time.Duration
	ListLimit               int `mapstructure:"LIST_LIMIT" validate:"min=1,max=100"`
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("POSTGRES_CONN_STR", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DATABASE", "socialmedia")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_CHANNEL", "notifications:invalidate")
	v.SetDefault("AUTH_PROVIDER", AuthJWT)
	v.SetDefault("JWT_SECRET", "supersecretjwtkey")
	v.SetDefault("FIREBASE_CREDENTIALS_PATH", "")
	v.SetDefault("SERVICE_TOKEN", "")
	v.SetDefault("METRICS_PORT", "9090")
	v.SetDefault("CACHE_TTL", "15s")
	v.SetDefault("CACHE_SWEEP_INTERVAL", "1m")
	v.SetDefault("LIST_LIMIT", 30)
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, assuming environment variables are set")
	}
	v := viper.New()
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Port:                    v.GetString("PORT"),
		Env:                     v.GetString("ENV"),
		LogLevel:                v.GetString("LOG_LEVEL"),
		StoreDriver:             v.GetString("STORE_DRIVER"),
		PostgresConnStr:         v.GetString("POSTGRES_CONN_STR"),
		MongoURI:                v.GetString("MONGO_URI"),
		MongoDatabase:           v.GetString("MONGO_DATABASE"),
		RedisAddr:               v.GetString("REDIS_ADDR"),
		RedisPassword:           v.GetString("REDIS_PASSWORD"),
		RedisChannel:            v.GetString("REDIS_CHANNEL"),
		AuthProvider:            v.GetString("AUTH_PROVIDER"),
		JWTSecret:               v.GetString("JWT_SECRET"),
		FirebaseCredentialsPath: v.GetString("FIREBASE_CREDENTIALS_PATH"),
		ServiceToken:            v.GetString("SERVICE_TOKEN"),
		MetricsPort:             v.GetString("METRICS_PORT"),
		CacheTTL:                v.GetDuration("CACHE_TTL"),
		CacheSweepInterval:      v.GetDuration("CACHE_SWEEP_INTERVAL"),
		ListLimit:               v.GetInt("LIST_LIMIT"),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if cfg.CacheTTL <= 0 {
		return nil, errors.New("invalid configuration: CACHE_TTL must be positive")
	}
	if cfg.CacheSweepInterval <= 0 {
		return nil, errors.New("invalid configuration: CACHE_SWEEP_INTERVAL must be positive")
	}
	return cfg, nil
}
