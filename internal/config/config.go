package config

import "os"

type Config struct {
	Server      ServerConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
	Provider    ProviderConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
}

type ServerConfig struct {
	Addr             string
	AllowedOrigins   string
	AllowCredentials string
}

type AuthConfig struct {
	JWTSecret      string
	JWTAccessTTL   string
	JWTRefreshTTL  string
	AllowSignup    string
	CookieSecure   string
	CookieSameSite string
	CookiePath     string
	CookieDomain   string
	// Validator selects the bank-sync token validator: "jwt" (default) or "oidc".
	Validator    string
	OIDCIssuer   string
	OIDCClientID string
}

type RateLimitConfig struct {
	MaxRequests string
	WindowMs    string
}

type IdempotencyConfig struct {
	// Driver: memory (default), redis, postgres
	Driver string
	TTL    string
	// PruneInterval controls the external prune scheduler in main.
	PruneInterval string
}

type ProviderConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	TokenURL     string
	Environment  string
}

type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       string
	Prefix   string
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
}

func Load() Config {
	return Config{
		Server: ServerConfig{
			Addr:             getenv("SERVER_ADDR", ":8080"),
			AllowedOrigins:   os.Getenv("CORS_ALLOWED_ORIGINS"),
			AllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false"),
		},
		Auth: AuthConfig{
			JWTSecret:      os.Getenv("JWT_SECRET"),
			JWTAccessTTL:   getenv("JWT_ACCESS_TTL", "15m"),
			JWTRefreshTTL:  getenv("JWT_REFRESH_TTL", "720h"),
			AllowSignup:    os.Getenv("ALLOW_SIGNUP"),
			CookieSecure:   os.Getenv("AUTH_COOKIE_SECURE"),
			CookieSameSite: os.Getenv("AUTH_COOKIE_SAMESITE"),
			CookiePath:     os.Getenv("AUTH_COOKIE_PATH"),
			CookieDomain:   os.Getenv("AUTH_COOKIE_DOMAIN"),
			Validator:      getenv("AUTH_VALIDATOR", "jwt"),
			OIDCIssuer:     os.Getenv("OIDC_ISSUER"),
			OIDCClientID:   os.Getenv("OIDC_CLIENT_ID"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: getenv("SYNC_RATE_LIMIT_MAX", "100"),
			WindowMs:    getenv("SYNC_RATE_LIMIT_WINDOW_MS", "60000"),
		},
		Idempotency: IdempotencyConfig{
			Driver:        getenv("IDEMPOTENCY_DRIVER", "memory"),
			TTL:           getenv("IDEMPOTENCY_TTL", "24h"),
			PruneInterval: getenv("IDEMPOTENCY_PRUNE_INTERVAL", "1h"),
		},
		Provider: ProviderConfig{
			BaseURL:      getenv("BANK_PROVIDER_URL", "https://sandbox.bankprovider.dev"),
			ClientID:     os.Getenv("BANK_PROVIDER_CLIENT_ID"),
			ClientSecret: os.Getenv("BANK_PROVIDER_SECRET"),
			TokenURL:     os.Getenv("BANK_PROVIDER_TOKEN_URL"),
			Environment:  getenv("BANK_PROVIDER_ENV", "sandbox"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Username: os.Getenv("REDIS_USERNAME"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getenv("REDIS_DB", "0"),
			Prefix:   getenv("REDIS_PREFIX", "banksync:webhook:"),
		},
		Postgres: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Host:        getenv("PGHOST", "localhost"),
			Port:        getenv("PGPORT", "5432"),
			User:        os.Getenv("PGUSER"),
			Password:    os.Getenv("PGPASSWORD"),
			Database:    os.Getenv("PGDATABASE"),
			SSLMode:     getenv("PGSSLMODE", "disable"),
		},
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
