// Package config loads the relay's settings from the environment and the
// YAML sources file. The result is immutable once Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/hknews/internal/cache"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/storage"
)

type Config struct {
	// Upstream settings
	NewsAPIKey     string `validate:"required"`
	NewsAPIBaseURL string `validate:"required,url"`
	Language       string `validate:"required"`
	HomeCountry    string `validate:"required,len=2"`

	// Pipeline settings
	FreshnessWindow  time.Duration `validate:"gt=0"`
	FilterMode       news.Mode     `validate:"oneof=strict permissive whitelist-off"`
	EnglishMinLength int           `validate:"gte=0"`
	GridDensity      int           `validate:"oneof=6 12"`

	// Cache settings
	CacheTTL  time.Duration `validate:"gte=0"`
	CacheMode cache.Mode    `validate:"oneof=fresh-or-fetch stale-tolerant"`

	// Store settings
	StoreBackend string `validate:"oneof=file sqlite postgres"`
	StorePath    string `validate:"required_unless=StoreBackend postgres"`
	DatabaseURL  string `validate:"required_if=StoreBackend postgres"`

	// Request budget
	RequestTimeout time.Duration `validate:"gt=0"`
	RetryAttempts  int           `validate:"gte=0,lte=5"`
	RetryDelay     time.Duration
	UpstreamRPS    float64 `validate:"gte=0"`
	DailyQuota     int     `validate:"gte=0"`

	// Serve settings
	SourcesConfigPath string
	RefreshSchedule   string `validate:"required"`
	HTTPAddr          string `validate:"required"`

	// Telegram settings
	TelegramToken  string
	TelegramChatID string `validate:"required_with=TelegramToken"`

	// App settings
	Debug bool

	Sources *Sources `validate:"required"`
}

// Region is one regional feed. Order in the sources file is display order.
type Region struct {
	Label   string `yaml:"label" validate:"required"`
	Country string `yaml:"country" validate:"required,len=2"`
}

// Sources is the YAML sources file.
type Sources struct {
	ValidSources  []string            `yaml:"valid_sources"`
	Logos         map[string]string   `yaml:"logos"`
	LogoPreferred []string            `yaml:"logo_preferred"`
	Regions       []Region            `yaml:"regions" validate:"dive"`
	RSSFeeds      map[string][]string `yaml:"rss_feeds"`
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		NewsAPIBaseURL:    "https://newsdata.io/api/1/latest",
		Language:          "zh",
		HomeCountry:       "hk",
		FreshnessWindow:   48 * time.Hour,
		FilterMode:        news.ModePermissive,
		EnglishMinLength:  news.DefaultEnglishMinLength,
		GridDensity:       6,
		CacheTTL:          3 * time.Minute,
		CacheMode:         cache.ModeFreshOrFetch,
		StoreBackend:      storage.BackendFile,
		RequestTimeout:    10 * time.Second,
		RetryAttempts:     0,
		RetryDelay:        2 * time.Second,
		UpstreamRPS:       1,
		DailyQuota:        200,
		SourcesConfigPath: "configs/sources.yaml",
		RefreshSchedule:   "*/3 * * * *",
		HTTPAddr:          ":8080",
	}

	// Load from environment
	cfg.NewsAPIKey = os.Getenv("NEWS_API_KEY")
	cfg.NewsAPIBaseURL = getEnvOrDefault("NEWS_API_BASE_URL", cfg.NewsAPIBaseURL)
	cfg.Language = getEnvOrDefault("NEWS_LANGUAGE", cfg.Language)
	cfg.HomeCountry = strings.ToLower(getEnvOrDefault("NEWS_COUNTRY", cfg.HomeCountry))
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.FreshnessWindow = time.Duration(getEnvIntOrDefault("FRESHNESS_WINDOW_HOURS", 48)) * time.Hour
	cfg.EnglishMinLength = getEnvIntOrDefault("ENGLISH_MIN_LENGTH", cfg.EnglishMinLength)
	cfg.GridDensity = getEnvIntOrDefault("GRID_DENSITY", cfg.GridDensity)
	cfg.CacheTTL = time.Duration(getEnvIntOrDefault("CACHE_TTL_MINUTES", 3)) * time.Minute
	cfg.RequestTimeout = time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second
	cfg.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", cfg.RetryAttempts)
	cfg.DailyQuota = getEnvIntOrDefault("UPSTREAM_DAILY_QUOTA", cfg.DailyQuota)

	if v := os.Getenv("UPSTREAM_RPS"); v != "" {
		if val, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.UpstreamRPS = val
		}
	}

	mode, err := news.ParseMode(os.Getenv("FILTER_MODE"))
	if err != nil {
		return nil, err
	}
	cfg.FilterMode = mode

	cacheMode, err := cache.ParseMode(os.Getenv("CACHE_MODE"))
	if err != nil {
		return nil, err
	}
	cfg.CacheMode = cacheMode

	cfg.StoreBackend = strings.ToLower(getEnvOrDefault("STORE_BACKEND", cfg.StoreBackend))
	cfg.StorePath = getEnvOrDefault("STORE_PATH", defaultStorePath(cfg.StoreBackend))
	cfg.SourcesConfigPath = getEnvOrDefault("SOURCES_CONFIG_PATH", cfg.SourcesConfigPath)
	cfg.RefreshSchedule = getEnvOrDefault("REFRESH_SCHEDULE", cfg.RefreshSchedule)
	cfg.HTTPAddr = getEnvOrDefault("HTTP_ADDR", cfg.HTTPAddr)

	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	sources, err := LoadSources(cfg.SourcesConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	return cfg, cfg.Validate()
}

func defaultStorePath(backend string) string {
	switch backend {
	case storage.BackendSQLite:
		return "data/hknews.db"
	case storage.BackendPostgres:
		return ""
	default:
		return "data/hknews.json"
	}
}

// LoadSources reads the sources file. A missing file yields the built-in
// defaults so the relay can start without one.
func LoadSources(path string) (*Sources, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return DefaultSources(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening sources file: %w", err)
	}
	defer f.Close()

	var s Sources
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing sources file %s: %w", path, err)
	}
	return &s, nil
}

// DefaultSources mirrors configs/sources.yaml.
func DefaultSources() *Sources {
	return &Sources{
		Logos: map[string]string{
			"scmp":    "https://via.placeholder.com/150?text=SCMP",
			"rthk":    "https://via.placeholder.com/150?text=RTHK",
			"hk01":    "https://via.placeholder.com/150?text=HK01",
			"yahoo":   "https://via.placeholder.com/150?text=Yahoo",
			"default": "https://via.placeholder.com/300x200?text=News",
		},
		LogoPreferred: []string{"yahoo", "rthk"},
		Regions: []Region{
			{Label: "日本", Country: "jp"},
			{Label: "台灣", Country: "tw"},
			{Label: "韓國", Country: "kr"},
			{Label: "新加坡", Country: "sg"},
			{Label: "美國", Country: "us"},
			{Label: "英國", Country: "gb"},
			{Label: "中國", Country: "cn"},
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
