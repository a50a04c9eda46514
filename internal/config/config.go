// Package config defines the configuration contract and handles loading and
// validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyBotToken       = "BOT_TOKEN"
	KeyWebAppURL      = "WEBAPP_URL"
	KeyStorageBackend = "STORAGE_BACKEND"
	KeyUsersFile      = "USERS_FILE"
	KeyMongoURI       = "MONGO_URI"
	KeyMongoDB        = "MONGO_DB"
	KeyAppEnv         = "APP_ENV"
	KeyLogLevel       = "LOG_LEVEL"
	KeyHTTPPort       = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Storage backend selectors.
	BackendFile  = "file"
	BackendMongo = "mongo"

	// Defaults for optional settings.
	DefaultAppEnv         = EnvProduction
	DefaultLogLevel       = "info"
	DefaultHTTPPort       = 8080
	DefaultWebAppURL      = "http://localhost:3000"
	DefaultStorageBackend = BackendFile
	DefaultUsersFile      = "data/users.json"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyWebAppURL,
		Example:     DefaultWebAppURL,
		Default:     DefaultWebAppURL,
		Description: "Base URL of the companion baby sleep tracker web app.",
	},
	{
		Key:         KeyStorageBackend,
		Example:     BackendFile + " / " + BackendMongo,
		Default:     DefaultStorageBackend,
		Description: "Profile store backend.",
		Notes:       "Mongo credentials become required when set to " + BackendMongo + ".",
	},
	{
		Key:         KeyUsersFile,
		Example:     DefaultUsersFile,
		Default:     DefaultUsersFile,
		Description: "Path of the JSON user store when the file backend is selected.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStorageBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     "baby_sleep",
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStorageBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP health/diagnostics port.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	BotToken       string
	WebAppURL      string
	StorageBackend string
	UsersFile      string
	MongoURI       string
	MongoDB        string
	AppEnv         string
	LogLevel       string
	HTTPPort       int
}

// Load resolves configuration from the environment (with optional dotenv in
// development). Missing required values fail fast before any event is served.
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:         firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		BotToken:       strings.TrimSpace(os.Getenv(KeyBotToken)),
		WebAppURL:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyWebAppURL)), DefaultWebAppURL),
		StorageBackend: firstNonEmpty(normalizeEnv(os.Getenv(KeyStorageBackend)), DefaultStorageBackend),
		UsersFile:      firstNonEmpty(strings.TrimSpace(os.Getenv(KeyUsersFile)), DefaultUsersFile),
		MongoURI:       strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:        strings.TrimSpace(os.Getenv(KeyMongoDB)),
		LogLevel:       firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:       DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if cfg.StorageBackend != BackendFile && cfg.StorageBackend != BackendMongo {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStorageBackend, BackendFile, BackendMongo)
	}

	missing := make([]string, 0)

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	}

	if cfg.StorageBackend == BackendMongo {
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// FormatRedacted renders the resolved configuration with secrets masked, for
// the --config-only diagnostic mode.
func FormatRedacted(cfg Config) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s=%s\n", KeyBotToken, redact(cfg.BotToken))
	fmt.Fprintf(&b, "%s=%s\n", KeyWebAppURL, cfg.WebAppURL)
	fmt.Fprintf(&b, "%s=%s\n", KeyStorageBackend, cfg.StorageBackend)
	fmt.Fprintf(&b, "%s=%s\n", KeyUsersFile, cfg.UsersFile)
	fmt.Fprintf(&b, "%s=%s\n", KeyMongoURI, redact(cfg.MongoURI))
	fmt.Fprintf(&b, "%s=%s\n", KeyMongoDB, cfg.MongoDB)
	fmt.Fprintf(&b, "%s=%s\n", KeyAppEnv, cfg.AppEnv)
	fmt.Fprintf(&b, "%s=%s\n", KeyLogLevel, cfg.LogLevel)
	fmt.Fprintf(&b, "%s=%d", KeyHTTPPort, cfg.HTTPPort)

	return b.String()
}

func redact(value string) string {
	if value == "" {
		return "(unset)"
	}

	return "(redacted)"
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
