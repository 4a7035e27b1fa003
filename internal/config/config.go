package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	VLM       VLMConfig       `mapstructure:"vlm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant"`
	Paths     PathsConfig     `mapstructure:"paths"`
	Search    SearchConfig    `mapstructure:"search"`
	Index     IndexConfig     `mapstructure:"index"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

// VLMConfig points at an OpenAI-compatible chat completions endpoint
// serving a vision-capable model (LM Studio by default).
type VLMConfig struct {
	Provider  string        `mapstructure:"provider"`
	Model     string        `mapstructure:"model"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxTokens int           `mapstructure:"max_tokens"`
}

type QdrantConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
}

type PathsConfig struct {
	ImagesDir  string `mapstructure:"images_dir"`
	RenamedDir string `mapstructure:"renamed_dir"`
}

type SearchConfig struct {
	DistanceThreshold float64 `mapstructure:"distance_threshold"`
	MaxResults        int     `mapstructure:"max_results"`
	CaptionLength     int     `mapstructure:"caption_length"`
}

type IndexConfig struct {
	Workers   int  `mapstructure:"workers"`
	OnStartup bool `mapstructure:"on_startup"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
	}
	return c.Path
}

// StorageConfig configures the optional S3-compatible mirror of renamed images.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from file, .env and environment variables.
// An empty configPath searches ./configs and the working directory for config.yaml.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.BindEnv("vlm.base_url", "LM_STUDIO_URL")
	v.BindEnv("vlm.model", "VLM_MODEL")
	v.BindEnv("vlm.api_key", "OPENAI_API_KEY")
	v.BindEnv("embedding.model", "EMBEDDING_MODEL")
	v.BindEnv("qdrant.host", "QDRANT_HOST")
	v.BindEnv("qdrant.port", "QDRANT_PORT")
	v.BindEnv("qdrant.api_key", "QDRANT_API_KEY")
	v.BindEnv("paths.images_dir", "IMAGES_DIR")
	v.BindEnv("paths.renamed_dir", "RENAMED_DIR")
	v.BindEnv("search.distance_threshold", "DISTANCE_THRESHOLD")
	v.BindEnv("search.max_results", "MAX_RESULTS")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("database.password", "DATABASE_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Embedding.inheritFrom(&cfg.VLM)
	cfg.Embedding.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("vlm.provider", "lmstudio")
	v.SetDefault("vlm.model", "google/gemma-3n-e4b")
	v.SetDefault("vlm.base_url", "http://localhost:1234/v1")
	v.SetDefault("vlm.api_key", "not-needed")
	v.SetDefault("vlm.timeout", 120*time.Second)
	v.SetDefault("vlm.max_tokens", 300)
	v.SetDefault("embedding.model", "text-embedding-nomic-embed-text-v1.5")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.collection", "images-description-collection")
	v.SetDefault("paths.images_dir", "./images")
	v.SetDefault("paths.renamed_dir", "./images_renamed")
	v.SetDefault("search.distance_threshold", 1.2)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.caption_length", 80)
	v.SetDefault("index.workers", 1)
	v.SetDefault("index.on_startup", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/imgfind.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.prefix", "renamed")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)
}

// Validate reports the first invalid static setting. Callers treat a
// non-nil result as fatal before any processing starts.
func (c *Config) Validate() error {
	if c.VLM.Model == "" {
		return fmt.Errorf("vlm: model is required")
	}
	if c.VLM.BaseURL == "" {
		return fmt.Errorf("vlm: base_url is required")
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant: collection is required")
	}
	if c.Qdrant.Port <= 0 {
		return fmt.Errorf("qdrant: port must be positive")
	}
	if c.Paths.ImagesDir == "" || c.Paths.RenamedDir == "" {
		return fmt.Errorf("paths: images_dir and renamed_dir are required")
	}
	if c.Search.DistanceThreshold <= 0 {
		return fmt.Errorf("search: distance_threshold must be positive, got %v", c.Search.DistanceThreshold)
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search: max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Index.Workers <= 0 {
		return fmt.Errorf("index: workers must be positive, got %d", c.Index.Workers)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage: bucket is required when storage is enabled")
	}
	return nil
}
