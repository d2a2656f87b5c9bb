package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	ChannelBase      string
	JWTSecret        string
	JWTRefreshSecret string

	VerifierBaseURL string
	VerifierTimeout time.Duration

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	RankingCacheTTL  time.Duration
	RankingBatchSize int

	OpenAIAPIKey string
	OpenAIModel  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INVIGILO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Invigilo API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "invigilo")
	v.SetDefault("verifier.timeout_ms", 5000)
	v.SetDefault("cloudinary.folder", "invigilo/evidence")
	v.SetDefault("ranking.cache_ttl", "60s")
	v.SetDefault("ranking.batch_size", 100)

	ttlString := v.GetString("ranking.cache_ttl")
	if ttlString == "" {
		ttlString = "60s"
	}

	ttl, err := time.ParseDuration(ttlString)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ranking cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("verifier.timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		ChannelBase:      v.GetString("channel.base"),
		JWTSecret:        v.GetString("jwt.secret"),
		JWTRefreshSecret: v.GetString("jwt.refresh_secret"),

		VerifierBaseURL: v.GetString("verifier.base_url"),
		VerifierTimeout: time.Duration(timeoutMs) * time.Millisecond,

		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),

		RankingCacheTTL:  ttl,
		RankingBatchSize: v.GetInt("ranking.batch_size"),

		OpenAIAPIKey: v.GetString("openai_api_key"),
		OpenAIModel:  v.GetString("openai_model"),
	}

	if cfg.JWTSecret == "" || cfg.JWTRefreshSecret == "" {
		return Config{}, fmt.Errorf("jwt secrets must be provided")
	}

	if cfg.VerifierBaseURL == "" {
		return Config{}, fmt.Errorf("verifier base url must be provided")
	}

	if cfg.RankingBatchSize <= 0 {
		cfg.RankingBatchSize = 100
	}

	return cfg, nil
}
