package domain

import (
	"os"
	"strconv"
	"time"
)

// Static service metadata reported by the health endpoint.
const (
	ServiceName    = "TrueMeter Mileage Fraud Detection API"
	DatasetSource  = "autoscout24-germany-dataset.csv"
	CreatorName    = "Zoran Janjic"
	CreatorWebsite = "https://www.linkedin.com/in/janjiczoran/"
)

// Config holds the complete TrueMeter configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Model artifact settings
	Models ModelsConfig `json:"models"`

	// AsyncWorker enables the background worker consuming check requests
	// from the event bus.
	AsyncWorker bool `json:"asyncWorker"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ModelsConfig holds model artifact locations and decision defaults.
type ModelsConfig struct {
	// RegressorPath is the expected-mileage regression artifact.
	RegressorPath string `json:"regressorPath"`

	// ClassifierPath is the fraud classification artifact. The artifact
	// may bundle a decision threshold that overrides DefaultThreshold.
	ClassifierPath string `json:"classifierPath"`

	// DefaultThreshold is the fraud probability threshold used until an
	// artifact overrides it.
	DefaultThreshold float64 `json:"defaultThreshold"`
}

// DefaultConfig returns the default configuration: SQLite, in-process LRU
// cache and channel bus, artifacts under ./models.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./truemeter.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ResultTTL:    time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Models: ModelsConfig{
			RegressorPath:    "./models/mileage_regressor_v2.json",
			ClassifierPath:   "./models/fraud_classifier_v1.json",
			DefaultThreshold: 0.5,
		},
	}
}

// FromEnv returns the default configuration with TRUEMETER_* environment
// overrides applied.
func FromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("TRUEMETER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("TRUEMETER_PORT"); ok {
		cfg.Server.Port = v
	}

	if v := os.Getenv("TRUEMETER_DB_DRIVER"); v != "" {
		cfg.Repository.Driver = v
	}
	if v := os.Getenv("TRUEMETER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("TRUEMETER_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v, ok := envInt("TRUEMETER_POSTGRES_PORT"); ok {
		cfg.Repository.PostgresPort = v
	}
	if v := os.Getenv("TRUEMETER_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("TRUEMETER_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("TRUEMETER_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}

	if v := os.Getenv("TRUEMETER_CACHE"); v != "" {
		cfg.Cache.Type = v
	}
	if v := os.Getenv("TRUEMETER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("TRUEMETER_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if os.Getenv("TRUEMETER_CACHE_TWO_PHASE") == "true" {
		cfg.Cache.EnableTwoPhase = true
	}

	if v := os.Getenv("TRUEMETER_BUS"); v != "" {
		cfg.EventBus.Type = v
	}
	if v := os.Getenv("TRUEMETER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("TRUEMETER_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	if v := os.Getenv("TRUEMETER_REGRESSOR_PATH"); v != "" {
		cfg.Models.RegressorPath = v
	}
	if v := os.Getenv("TRUEMETER_CLASSIFIER_PATH"); v != "" {
		cfg.Models.ClassifierPath = v
	}
	if v := os.Getenv("TRUEMETER_FRAUD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Models.DefaultThreshold = f
		}
	}

	if os.Getenv("TRUEMETER_ASYNC_WORKER") == "true" {
		cfg.AsyncWorker = true
	}

	return cfg
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
