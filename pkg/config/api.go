package config

import "time"

// APIConfig holds runtime configuration for the deployment API service.
type APIConfig struct {
	Environment   string
	Addr          string
	DatabaseURL   string
	MigrationsDir string

	// Remote script-hosting platform credentials and addressing.
	PlatformAPIBase   string
	PlatformAccountID string
	PlatformAPIToken  string

	// DispatchNamespace is the execution namespace workers are deployed
	// into; it doubles as the hostname label in derived worker URLs.
	DispatchNamespace string
	WorkersDomain     string

	APIAuthToken string

	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	// Sweeper settings for deployments stuck in the deploying state.
	SweepInterval time.Duration
	DeployingTTL  time.Duration
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() APIConfig {
	return APIConfig{
		Environment:        GetString("APP_ENV", "development"),
		Addr:               GetString("API_ADDR", ":4100"),
		DatabaseURL:        GetString("DATABASE_URL", "postgres://edgedeploy:edgedeploy@db:5432/edgedeploy?sslmode=disable"),
		MigrationsDir:      GetString("DB_MIGRATIONS_DIR", "./db/migrations"),
		PlatformAPIBase:    GetString("PLATFORM_API_BASE", "https://api.cloudflare.com/client/v4"),
		PlatformAccountID:  GetString("PLATFORM_ACCOUNT_ID", ""),
		PlatformAPIToken:   GetString("PLATFORM_API_TOKEN", ""),
		DispatchNamespace:  GetString("DISPATCH_NAMESPACE", "edge-workers"),
		WorkersDomain:      GetString("WORKERS_DOMAIN", "workers.dev"),
		APIAuthToken:       GetString("API_AUTH_TOKEN", ""),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),
		SweepInterval:      time.Duration(GetInt("DEPLOY_SWEEP_SECONDS", 60)) * time.Second,
		DeployingTTL:       time.Duration(GetInt("DEPLOYING_TTL_SECONDS", 900)) * time.Second,
	}
}
