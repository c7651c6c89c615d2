// Package config loads gateway settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config carries every runtime setting the gateway needs. Required values are
// validated by Load; optional ones fall back to defaults.
type Config struct {
	// MongoURI points at the backend's document store (token records,
	// callback answers, read models).
	MongoURI string

	// Domain and DCPort form the MTProto data-center endpoint of the
	// self-hosted backend.
	Domain string
	DCPort int

	// APIID and APIHash identify this application to the backend.
	APIID   int
	APIHash string

	// PublicKey is the backend's RSA public key in PEM form.
	PublicKey string

	// AdminAPIURL is the base URL of the backend's admin REST API.
	AdminAPIURL string

	// BotFatherPhone enables the BotFather token bootstrap when set.
	BotFatherPhone string

	Brand       string
	ListenAddr  string
	SessionsDir string
	Env         string
	LogLevel    string
}

// Load reads the environment and validates it. All missing required keys are
// reported in a single error so operators fix the deployment in one pass.
func Load() (*Config, error) {
	cfg := &Config{
		MongoURI:       os.Getenv("MONGODB_URI"),
		Domain:         os.Getenv("DOMAIN"),
		APIHash:        os.Getenv("API_HASH"),
		PublicKey:      os.Getenv("PUBLIC_KEY"),
		AdminAPIURL:    strings.TrimRight(os.Getenv("ADMIN_API_URL"), "/"),
		BotFatherPhone: os.Getenv("BOTFATHER_PHONE"),
		Brand:          getenv("BRAND", "Bot API Server"),
		ListenAddr:     getenv("LISTEN_ADDR", ":5449"),
		SessionsDir:    getenv("SESSIONS_DIR", "sessions"),
		Env:            getenv("ENV", "production"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
	}

	var missing []string
	for _, key := range []string{"MONGODB_URI", "DOMAIN", "PORT", "API_ID", "API_HASH", "PUBLIC_KEY", "ADMIN_API_URL"} {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be an integer: %w", err)
	}
	cfg.DCPort = port

	apiID, err := strconv.Atoi(os.Getenv("API_ID"))
	if err != nil {
		return nil, fmt.Errorf("API_ID must be an integer: %w", err)
	}
	cfg.APIID = apiID

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
