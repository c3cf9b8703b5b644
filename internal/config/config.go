package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	DynamoTables    DynamoTables
	DynamoBootstrap bool

	// KMSKeyID selects the managed signer. When empty the service falls back
	// to the RSA key at JWTPrivateKeyPath.
	KMSKeyID          string
	JWTPrivateKeyPath string

	TokenIssuer        string
	TokenAudience      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	UnverifiedUserTTL time.Duration
	VerifiedUserTTL   time.Duration // 0 disables expiry for verified users

	RefreshCookieName string
	CookieDomain      string
	CookiePath        string

	ValidationSecretID string
	EthRPCURL          string

	SNSRegion      string
	LoginTopicARN  string
	AllowedOrigins []string // CORS allowed origins
	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-Ip.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:  getEnv("APP_PORT", "3000"),
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users: getEnv("DYNAMO_TABLE_USERS", "users"),
		},
		DynamoBootstrap: getEnvBool("DYNAMO_BOOTSTRAP", false),

		KMSKeyID:          getEnv("KMS_KEY_ID", ""),
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),

		TokenIssuer:        getEnv("TOKEN_ISSUER", "wallet-auth"),
		TokenAudience:      getEnv("TOKEN_AUDIENCE", "wallet-auth-api"),
		AccessTokenExpiry:  getEnvDuration("ACCESS_TOKEN_EXPIRY", 5*time.Minute),
		RefreshTokenExpiry: getEnvDuration("REFRESH_TOKEN_EXPIRY", 60*time.Minute),

		UnverifiedUserTTL: getEnvDuration("UNVERIFIED_USER_TTL", 15*time.Minute),
		VerifiedUserTTL:   getEnvDuration("VERIFIED_USER_TTL", 0),

		RefreshCookieName: getEnv("REFRESH_COOKIE_NAME", "refresh_token"),
		CookieDomain:      getEnv("COOKIE_DOMAIN", ""),
		CookiePath:        getEnv("COOKIE_PATH", "/v1/auth"),

		ValidationSecretID: getEnv("VALIDATION_SECRET_ID", ""),
		EthRPCURL:          getEnv("ETH_RPC_URL", "https://mainnet.infura.io/v3/"),

		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		LoginTopicARN:  getEnv("SNS_LOGIN_TOPIC_ARN", ""),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

// IsDevelopment reports whether the service runs against local infrastructure.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5m", "90s").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
