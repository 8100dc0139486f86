package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MongoURI            string
	PostgresURI         string
	RedisURI            string
	Port                string
	Environment         string // ENV: production, development, etc.
	AllowedOrigins      []string
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	// DetectionBaseURL is the base URL of the external detection service
	// (e.g. https://detect.authmed.app). Required; there is no default
	// because the value changes per deployment.
	DetectionBaseURL string
	// DetectionTimeout bounds a single detection call. 0 disables the
	// client-side timeout and leaves only the platform default.
	DetectionTimeout time.Duration
	// MinConfidence is the threshold under which a detection counts as
	// "no medicine detected".
	MinConfidence float64

	// BackgroundImageURL is the home-screen background fetched once at
	// startup and cached for the life of the process.
	BackgroundImageURL string
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{getEnv("FRONTEND_URL", "http://localhost:19006")}
	}

	timeoutSecs, err := strconv.Atoi(getEnv("DETECTION_TIMEOUT_SECONDS", "30"))
	if err != nil || timeoutSecs < 0 {
		timeoutSecs = 30
	}

	minConfidence, err := strconv.ParseFloat(getEnv("DETECTION_MIN_CONFIDENCE", "0.5"), 64)
	if err != nil || minConfidence < 0 || minConfidence > 1 {
		minConfidence = 0.5
	}

	return &Config{
		MongoURI:            getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/authmed")),
		PostgresURI:         getEnv("POSTGRES_URI", "postgres://localhost:5432/authmed?sslmode=disable"),
		RedisURI:            getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Port:                getEnv("PORT", "8080"),
		Environment:         env,
		AllowedOrigins:      allowedOrigins,
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		DetectionBaseURL:    strings.TrimRight(getEnv("DETECTION_BASE_URL", ""), "/"),
		DetectionTimeout:    time.Duration(timeoutSecs) * time.Second,
		MinConfidence:       minConfidence,
		BackgroundImageURL:  getEnv("BACKGROUND_IMAGE_URL", ""),
	}
}

// Validate checks the required configuration surface. The detection base URL
// used to be a hardcoded literal that drifted between builds; it must now be
// provided explicitly.
func (c *Config) Validate() error {
	if c.DetectionBaseURL == "" {
		return errors.New("DETECTION_BASE_URL is required")
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return strings.ToLower(strings.TrimSpace(c.Environment)) == "production"
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
