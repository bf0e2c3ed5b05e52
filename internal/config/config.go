package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"rakshak/pkg/logger"
)

type Config struct {
	App       *AppConfig       `yaml:"app"`
	Logging   *logger.Config   `yaml:"logging"`
	Backend   *BackendConfig   `yaml:"backend"`
	SOS       *SOSConfig       `yaml:"sos"`
	Device    *DeviceConfig    `yaml:"device"`
	Store     *StoreConfig     `yaml:"store"`
	Maps      *MapsConfig      `yaml:"maps"`
	Media     *MediaConfig     `yaml:"media"`
	Storage   *StorageConfig   `yaml:"storage"`
	SMS       *SMSConfig       `yaml:"sms"`
	WebSocket *WebSocketConfig `yaml:"websocket"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Debug       bool   `yaml:"debug"`

	// ControlToken, when set, is required as a bearer token on the control API.
	// ControlJWTSecret switches the API to HS256 signed tokens instead.
	ControlToken     string `yaml:"control_token"`
	ControlJWTSecret string `yaml:"control_jwt_secret"`
}

type BackendConfig struct {
	BaseURL  string        `yaml:"base_url"`
	LinkBase string        `yaml:"link_base"`
	Timeout  time.Duration `yaml:"timeout"`
}

func Load() (*Config, error) {
	config := &Config{
		App:       loadAppConfig(),
		Logging:   loadLoggingConfig(),
		Backend:   loadBackendConfig(),
		SOS:       loadSOSConfig(),
		Device:    loadDeviceConfig(),
		Store:     loadStoreConfig(),
		Maps:      loadMapsConfig(),
		Media:     loadMediaConfig(),
		Storage:   loadStorageConfig(),
		SMS:       loadSMSConfig(),
		WebSocket: loadWebSocketConfig(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFile loads the environment defaults and overlays the YAML document at path.
// Keys absent from the document keep their environment value.
func LoadFile(path string) (*Config, error) {
	config, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) Validate() error {
	if c.SOS.AudioLimit <= 0 {
		return fmt.Errorf("config: sos.audio_limit must be positive")
	}
	if c.SOS.LocationPushInterval <= 0 {
		return fmt.Errorf("config: sos.location_push_interval must be positive")
	}
	if c.SOS.PhotoInterval <= 0 {
		return fmt.Errorf("config: sos.photo_interval must be positive")
	}
	if c.SOS.LocationTimeout <= 0 {
		return fmt.Errorf("config: sos.location_timeout must be positive")
	}
	if !oneOf(c.Store.Provider, StoreProviderFile, StoreProviderRedis, StoreProviderMongo) {
		return fmt.Errorf("config: unknown store provider %q", c.Store.Provider)
	}
	if !oneOf(c.Media.Sink, MediaSinkBackend, MediaSinkStorage) {
		return fmt.Errorf("config: unknown media sink %q", c.Media.Sink)
	}
	if !oneOf(c.Storage.Provider, "local", "aws", "gcp") {
		return fmt.Errorf("config: unknown storage provider %q", c.Storage.Provider)
	}
	if !oneOf(c.SMS.Provider, "", SMSProviderNone, SMSProviderTwilio, SMSProviderSNS) {
		return fmt.Errorf("config: unknown sms provider %q", c.SMS.Provider)
	}
	if c.Media.MaxAttempts < 1 {
		return fmt.Errorf("config: media.max_attempts must be at least 1")
	}
	return nil
}

func loadAppConfig() *AppConfig {
	return &AppConfig{
		Name:        getEnv("APP_NAME", "Rakshak"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnvAsInt("APP_PORT", 8787),
		Host:        getEnv("APP_HOST", "127.0.0.1"),
		Debug:       getEnvAsBool("APP_DEBUG", false),

		ControlToken:     getEnv("CONTROL_API_TOKEN", ""),
		ControlJWTSecret: getEnv("CONTROL_JWT_SECRET", ""),
	}
}

func loadLoggingConfig() *logger.Config {
	return &logger.Config{
		Level:      logger.LogLevel(getEnv("LOG_LEVEL", "info")),
		Format:     getEnv("LOG_FORMAT", "text"),
		Output:     getEnv("LOG_OUTPUT", "stdout"),
		TimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		Caller:     getEnvAsBool("LOG_CALLER", false),
		Colors:     getEnvAsBool("LOG_COLORS", false),
		AppName:    getEnv("APP_NAME", "Rakshak"),
		Version:    getEnv("APP_VERSION", "1.0.0"),
		MaxSizeMB:  getEnvAsInt("LOG_MAX_SIZE_MB", 32),
		MaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		MaxAgeDays: getEnvAsInt("LOG_MAX_AGE_DAYS", 14),
	}
}

func loadBackendConfig() *BackendConfig {
	return &BackendConfig{
		BaseURL:  getEnv("BACKEND_BASE_URL", "https://rakshak-gamma.vercel.app"),
		LinkBase: getEnv("BACKEND_LINK_BASE", "https://rakshak-gamma.vercel.app"),
		Timeout:  getEnvAsDuration("BACKEND_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func IsProduction() bool {
	return getEnv("APP_ENV", "development") == "production"
}

func IsDevelopment() bool {
	return getEnv("APP_ENV", "development") == "development"
}
