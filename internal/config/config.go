package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Provider  ProviderConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SubmitPerHour int
	RetryPerHour  int
}

// ProviderConfig points at the external music generation API.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// SchedulerConfig carries the queue/ETA tuning knobs. AvgJobMinutes is the
// typical provider turnaround used for wait estimates; the provider gives no
// such hint, so it is operator-tuned.
type SchedulerConfig struct {
	AvgJobMinutes          int
	StuckAfterMinutes      int
	ProviderPollSeconds    int
	ProviderMaxWaitMinutes int
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("PROVIDER_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.retry_per_hour", "RATELIMIT_RETRY_PER_HOUR")
	_ = viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	_ = viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	_ = viper.BindEnv("storage.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("storage.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("scheduler.avg_job_minutes", "SCHEDULER_AVG_JOB_MINUTES")
	_ = viper.BindEnv("scheduler.stuck_after_minutes", "SCHEDULER_STUCK_AFTER_MINUTES")
	_ = viper.BindEnv("scheduler.provider_poll_seconds", "SCHEDULER_PROVIDER_POLL_SECONDS")
	_ = viper.BindEnv("scheduler.provider_max_wait_minutes", "SCHEDULER_PROVIDER_MAX_WAIT_MINUTES")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.submit_per_hour", 20)
	viper.SetDefault("ratelimit.retry_per_hour", 30)

	// Provider defaults
	viper.SetDefault("provider.base_url", "https://api.sunoapi.org")

	// Scheduler defaults
	viper.SetDefault("scheduler.avg_job_minutes", 3)
	viper.SetDefault("scheduler.stuck_after_minutes", 20)
	viper.SetDefault("scheduler.provider_poll_seconds", 5)
	viper.SetDefault("scheduler.provider_max_wait_minutes", 10)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			RetryPerHour:  viper.GetInt("ratelimit.retry_per_hour"),
		},
		Provider: ProviderConfig{
			APIKey:  viper.GetString("provider.api_key"),
			BaseURL: viper.GetString("provider.base_url"),
		},
		Storage: StorageConfig{
			AccountID:       viper.GetString("storage.account_id"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicURL:       viper.GetString("storage.public_url"),
		},
		Scheduler: SchedulerConfig{
			AvgJobMinutes:          viper.GetInt("scheduler.avg_job_minutes"),
			StuckAfterMinutes:      viper.GetInt("scheduler.stuck_after_minutes"),
			ProviderPollSeconds:    viper.GetInt("scheduler.provider_poll_seconds"),
			ProviderMaxWaitMinutes: viper.GetInt("scheduler.provider_max_wait_minutes"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
