package config

import (
	"encoding/base64"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port               string
	MongoURI           string
	DBName             string
	JWTSecret          string
	GoogleClientID     string
	GoogleClientSecret string
	OAuthRedirectURL   string
	FrontendURL        string
	CORSOrigin         string
	PerspectiveAPIKey  string
	OpenRouterAPIKey   string
	MaxConcurrent      int
	RequestTimeout     time.Duration
	TokenEncryptionKey []byte // 32 bytes for AES-256; optional, base64 in env
}

func Load() (*Config, error) {
	maxConcurrent := 20
	if v := getEnv("MAX_CONCURRENT_REQUESTS", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxConcurrent = n
		}
	}
	timeoutMs := int64(3000)
	if v := getEnv("REQUEST_TIMEOUT_MS", ""); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			timeoutMs = n
		}
	}
	var tokenKey []byte
	if k := getEnv("TOKEN_ENCRYPTION_KEY", ""); k != "" {
		tokenKey, _ = base64.StdEncoding.DecodeString(k)
		if len(tokenKey) != 32 {
			tokenKey = nil
		}
	}

	return &Config{
		Port:               getEnv("PORT", "8080"),
		MongoURI:           getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		DBName:             getEnv("MONGODB_DB", "reado"),
		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		OAuthRedirectURL:   getEnv("OAUTH_REDIRECT_URL", "http://localhost:8080/users/auth/google/callback"),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
		CORSOrigin:         getEnv("CORS_ORIGIN", "http://localhost:3000"),
		PerspectiveAPIKey:  getEnv("PERSPECTIVE_API_KEY", ""),
		OpenRouterAPIKey:   getEnv("OPENROUTER_API_KEY", ""),
		MaxConcurrent:      maxConcurrent,
		RequestTimeout:     time.Duration(timeoutMs) * time.Millisecond,
		TokenEncryptionKey: tokenKey,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
