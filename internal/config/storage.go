package config

import (
	"time"
)

const (
	StoreProviderFile  = "file"
	StoreProviderRedis = "redis"
	StoreProviderMongo = "mongo"

	MediaSinkBackend = "backend"
	MediaSinkStorage = "storage"
)

// StoreConfig selects where the device keeps the signed-in user, the active
// session record and the trigger phrase.
type StoreConfig struct {
	Provider string            `yaml:"provider"`
	FilePath string            `yaml:"file_path"`
	Redis    *RedisStoreConfig `yaml:"redis"`
	Mongo    *MongoStoreConfig `yaml:"mongo"`
}

type RedisStoreConfig struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	PoolSize  int           `yaml:"pool_size"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MongoStoreConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type MediaConfig struct {
	Sink           string        `yaml:"sink"` // backend, storage
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	KeepLocal      bool          `yaml:"keep_local"`
}

type StorageConfig struct {
	Provider string              `yaml:"provider"`
	Local    *LocalStorageConfig `yaml:"local"`
	AWS      *AWSStorageConfig   `yaml:"aws"`
	GCP      *GCPStorageConfig   `yaml:"gcp"`
}

type LocalStorageConfig struct {
	BasePath string `yaml:"base_path"`
	BaseURL  string `yaml:"base_url"`
}

type AWSStorageConfig struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	CDNDomain       string `yaml:"cdn_domain"`
}

type GCPStorageConfig struct {
	ProjectID       string `yaml:"project_id"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
	CDNDomain       string `yaml:"cdn_domain"`
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Provider: getEnv("STORE_PROVIDER", StoreProviderFile),
		FilePath: getEnv("STORE_FILE_PATH", "./rakshak-state.json"),
		Redis: &RedisStoreConfig{
			URL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "rakshak:"),
			PoolSize:  getEnvAsInt("REDIS_POOL_SIZE", 4),
			Timeout:   getEnvAsDuration("REDIS_TIMEOUT", 3*time.Second),
		},
		Mongo: &MongoStoreConfig{
			URI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGODB_DATABASE", "rakshak"),
			Collection: getEnv("MONGODB_COLLECTION", "device_state"),
			Timeout:    getEnvAsDuration("MONGODB_TIMEOUT", 10*time.Second),
		},
	}
}

func loadMediaConfig() *MediaConfig {
	return &MediaConfig{
		Sink:           getEnv("MEDIA_SINK", MediaSinkBackend),
		MaxAttempts:    getEnvAsInt("MEDIA_MAX_ATTEMPTS", 3),
		InitialBackoff: getEnvAsDuration("MEDIA_INITIAL_BACKOFF", time.Second),
		MaxBackoff:     getEnvAsDuration("MEDIA_MAX_BACKOFF", 8*time.Second),
		KeepLocal:      getEnvAsBool("MEDIA_KEEP_LOCAL", false),
	}
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		Provider: getEnv("STORAGE_PROVIDER", "local"),
		Local: &LocalStorageConfig{
			BasePath: getEnv("STORAGE_LOCAL_PATH", "./evidence"),
			BaseURL:  getEnv("STORAGE_LOCAL_URL", "http://localhost:8787/evidence"),
		},
		AWS: &AWSStorageConfig{
			Region:          getEnv("AWS_S3_REGION", "ap-south-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			CDNDomain:       getEnv("AWS_CLOUDFRONT_DOMAIN", ""),
		},
		GCP: &GCPStorageConfig{
			ProjectID:       getEnv("GCP_PROJECT_ID", ""),
			Bucket:          getEnv("GCP_STORAGE_BUCKET", ""),
			CredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
			CDNDomain:       getEnv("GCP_CDN_DOMAIN", ""),
		},
	}
}
