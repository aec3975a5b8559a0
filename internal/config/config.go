package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/eternisai/enchanted-push/internal/push"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

const defaultAppOrigin = "http://localhost:3000"

type Config struct {
	Port    string
	GinMode string

	// Push environment
	Environment string
	ConfigFile  string
	Push        push.Config
	Files       EnvironmentsConfig

	// Push provider transport
	NatsURL           string
	NatsSubjectPrefix string

	// Device registry
	FirebaseProjectID string
	FirebaseCredJSON  string
	VerifyTokens      bool
	RefreshSchedule   string

	// Platform
	InitialPermission       push.PermissionState
	PermissionPromptTimeout time.Duration
	OpenCommand             []string
	NotifyCommand           []string
	NotifyIconFlag          string
	ScreenResolution        string
	Version                 string

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env, the environment and the push configuration file, and
// selects the push environment named by PUSH_ENV.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8787"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		Environment: getEnvOrDefault("PUSH_ENV", ""),
		ConfigFile:  getEnvOrDefault("PUSH_CONFIG_FILE", "push.yaml"),

		// NATS
		NatsURL:           getEnvOrDefault("NATS_URL", "nats://127.0.0.1:4222"),
		NatsSubjectPrefix: getEnvOrDefault("NATS_SUBJECT_PREFIX", "push"),

		// Firebase
		FirebaseProjectID: getEnvOrDefault("FIREBASE_PROJECT_ID", ""),
		FirebaseCredJSON:  getEnvOrDefault("FIREBASE_CRED_JSON", ""),
		VerifyTokens:      getEnvAsBool("VERIFY_TOKENS", false),
		RefreshSchedule:   getEnvOrDefault("TOKEN_REFRESH_SCHEDULE", "@every 6h"),

		// Platform
		InitialPermission:       push.ParsePermissionState(getEnvOrDefault("NOTIFICATION_PERMISSION", "default")),
		PermissionPromptTimeout: getEnvAsDuration("PERMISSION_PROMPT_TIMEOUT", 2*time.Minute),
		OpenCommand:             strings.Fields(getEnvOrDefault("OPEN_COMMAND", "xdg-open")),
		NotifyCommand:           strings.Fields(getEnvOrDefault("NOTIFY_COMMAND", "")),
		NotifyIconFlag:          getEnvOrDefault("NOTIFY_ICON_FLAG", "-i"),
		ScreenResolution:        getEnvOrDefault("SCREEN_RESOLUTION", ""),
		Version:                 getEnvOrDefault("AGENT_VERSION", "dev"),

		// Server
		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 10),

		// CORS
		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", ""),

		// Logging
		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	file, err := os.Open(cfg.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("opening push configuration: %w", err)
	}
	defer file.Close()

	if err := LoadConfigFile(file, &cfg.Files); err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.ConfigFile, err)
	}

	cfg.Push, err = cfg.Files.Select(cfg.Environment)
	if err != nil {
		return nil, err
	}

	// Only the app origin may reach the agent unless origins are set explicitly.
	if cfg.CORSAllowedOrigins == "" {
		cfg.CORSAllowedOrigins = appOrigin(cfg.Files.Presentation.AppBaseURL)
	}

	if cfg.FirebaseProjectID == "" {
		cfg.FirebaseProjectID = cfg.Push.ProjectID
	}

	log.Printf("Push environment: %s (project %s, sender %s)", cfg.Environment, cfg.Push.ProjectID, cfg.Push.SenderID)

	if cfg.FirebaseCredJSON == "" {
		log.Println("Warning: Firebase credentials are missing, device registrations are kept in memory. Set FIREBASE_CRED_JSON to use Firestore.")
	} else {
		sum := sha256.Sum256([]byte(cfg.FirebaseCredJSON))
		log.Printf("Firebase credentials loaded (sha256=%x, bytes=%d)", sum, len(cfg.FirebaseCredJSON))
	}

	return cfg, nil
}

// appOrigin reduces the app base URL to its origin, falling back to the
// local development app.
func appOrigin(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return defaultAppOrigin
	}
	return u.Scheme + "://" + u.Host
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as bool, using default %t: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func LoadConfigFile(reader io.Reader, config *EnvironmentsConfig) error {
	decoder := yaml.NewDecoder(reader)

	if err := decoder.Decode(config); err != nil {
		return err
	}

	return config.Validate()
}
