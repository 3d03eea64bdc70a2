package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Engine   EngineConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// DSN returns the libpq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// URL returns the connection URL used by the pgx stdlib driver
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type AppConfig struct {
	DataDir    string
	ReportsDir string
	ModelDir   string
	LogLevel   string
	Schedule   string
}

type CacheConfig struct {
	Enabled          bool
	RedisURL         string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	RedisDB          int
	ReportTTLSeconds int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

type DriveConfig struct {
	Enabled         bool
	CredentialsJSON string
	FolderPath      string
}

// EngineConfig carries the decision-engine parameters
type EngineConfig struct {
	HorizonDays            int
	ServiceLevel           float64
	LeadTimeDays           int
	HoldingCostPerUnitDay  float64
	StockoutPenaltyPerUnit float64
	CostFractionOfBase     float64
	MarkdownGrid           []float64
	InventoryDaysOfSupply  float64
	InitialOnHandDays      float64
	MaxItemsPerStore       int
	MinItemsPerCat         int
	FallbackElasticity     float64
	MinElasticityObs       int
	PricingTopSeries       int
	PricingImpactTopN      int
	InventoryTopN          int
	Workers                int
	Model                  string
	RidgeLambda            float64
}

// Validate rejects parameter combinations the engine cannot run with
func (e EngineConfig) Validate() error {
	if e.HorizonDays <= 0 {
		return fmt.Errorf("ENGINE_HORIZON_DAYS must be > 0, got %d", e.HorizonDays)
	}
	if !(e.ServiceLevel > 0 && e.ServiceLevel < 1) {
		return fmt.Errorf("ENGINE_SERVICE_LEVEL must be in (0, 1), got %v", e.ServiceLevel)
	}
	if e.LeadTimeDays < 0 {
		return fmt.Errorf("ENGINE_LEAD_TIME_DAYS must be >= 0, got %d", e.LeadTimeDays)
	}
	if e.HoldingCostPerUnitDay < 0 || e.StockoutPenaltyPerUnit < 0 {
		return fmt.Errorf("cost rates must be >= 0")
	}
	if e.CostFractionOfBase < 0 {
		return fmt.Errorf("ENGINE_COST_FRACTION_OF_BASE_PRICE must be >= 0, got %v", e.CostFractionOfBase)
	}
	if len(e.MarkdownGrid) == 0 {
		return fmt.Errorf("ENGINE_MARKDOWN_GRID is empty")
	}
	for i, md := range e.MarkdownGrid {
		if md < 0 || md >= 1 {
			return fmt.Errorf("ENGINE_MARKDOWN_GRID value %v out of [0, 1)", md)
		}
		if i > 0 && md <= e.MarkdownGrid[i-1] {
			return fmt.Errorf("ENGINE_MARKDOWN_GRID must be strictly ascending")
		}
	}
	if e.MaxItemsPerStore <= 0 {
		return fmt.Errorf("ENGINE_MAX_ITEMS_PER_STORE must be > 0, got %d", e.MaxItemsPerStore)
	}
	if e.MinItemsPerCat < 0 {
		return fmt.Errorf("ENGINE_MIN_ITEMS_PER_CAT must be >= 0, got %d", e.MinItemsPerCat)
	}
	switch e.Model {
	case "linear", "naive":
	default:
		return fmt.Errorf("ENGINE_MODEL must be linear or naive, got %q", e.Model)
	}
	return nil
}

var (
	once     sync.Once
	instance *Config
)

// Load reads .env and the environment once and returns the process-wide config.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		SetDefaults(v)
		v.AutomaticEnv()

		cfg, err := FromViper(v)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid configuration")
		}

		ensureDir(cfg.App.DataDir)
		ensureDir(cfg.App.ReportsDir)
		ensureDir(cfg.App.ModelDir)

		instance = cfg
	})

	return instance
}

// SetDefaults registers every default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 300)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("DB_ENABLED", false)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "merchops")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)

	v.SetDefault("APP_DATA_DIR", "./data")
	v.SetDefault("APP_REPORTS_DIR", "./reports")
	v.SetDefault("APP_MODEL_DIR", "./models")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_SCHEDULE", "")

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_REPORT_TTL_SECONDS", 300)

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "merchops")
	v.SetDefault("STORAGE_PREFIX", "reports")
	v.SetDefault("STORAGE_USE_SSL", false)

	v.SetDefault("DRIVE_ENABLED", false)
	v.SetDefault("DRIVE_CREDENTIALS_JSON", "")
	v.SetDefault("DRIVE_FOLDER_PATH", "")

	v.SetDefault("ENGINE_HORIZON_DAYS", 28)
	v.SetDefault("ENGINE_SERVICE_LEVEL", 0.95)
	v.SetDefault("ENGINE_LEAD_TIME_DAYS", 7)
	v.SetDefault("ENGINE_HOLDING_COST_PER_UNIT_DAY", 0.01)
	v.SetDefault("ENGINE_STOCKOUT_PENALTY_PER_UNIT", 0.50)
	v.SetDefault("ENGINE_COST_FRACTION_OF_BASE_PRICE", 0.60)
	v.SetDefault("ENGINE_MARKDOWN_GRID", "0,0.1,0.2,0.3,0.4,0.5")
	v.SetDefault("ENGINE_INVENTORY_DAYS_OF_SUPPLY", 90)
	v.SetDefault("ENGINE_INITIAL_ON_HAND_DAYS", 14)
	v.SetDefault("ENGINE_MAX_ITEMS_PER_STORE", 200)
	v.SetDefault("ENGINE_MIN_ITEMS_PER_CAT", 10)
	v.SetDefault("ENGINE_FALLBACK_ELASTICITY", -1.2)
	v.SetDefault("ENGINE_MIN_ELASTICITY_OBS", 30)
	v.SetDefault("ENGINE_PRICING_TOP_SERIES", 500)
	v.SetDefault("ENGINE_PRICING_IMPACT_TOP_N", 200)
	v.SetDefault("ENGINE_INVENTORY_TOP_N", 200)
	v.SetDefault("ENGINE_WORKERS", 0)
	v.SetDefault("ENGINE_MODEL", "linear")
	v.SetDefault("ENGINE_RIDGE_LAMBDA", 1e-3)
}

// FromViper builds and validates a Config from v
func FromViper(v *viper.Viper) (*Config, error) {
	grid, err := parseGrid(v.GetString("ENGINE_MARKDOWN_GRID"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Enabled:  v.GetBool("DB_ENABLED"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt("DB_MAX_CONNS"),
		},
		App: AppConfig{
			DataDir:    v.GetString("APP_DATA_DIR"),
			ReportsDir: v.GetString("APP_REPORTS_DIR"),
			ModelDir:   v.GetString("APP_MODEL_DIR"),
			LogLevel:   v.GetString("LOG_LEVEL"),
			Schedule:   v.GetString("APP_SCHEDULE"),
		},
		Cache: CacheConfig{
			Enabled:          v.GetBool("CACHE_ENABLED"),
			RedisURL:         v.GetString("REDIS_URL"),
			RedisHost:        v.GetString("REDIS_HOST"),
			RedisPort:        v.GetString("REDIS_PORT"),
			RedisPassword:    v.GetString("REDIS_PASSWORD"),
			RedisDB:          v.GetInt("REDIS_DB"),
			ReportTTLSeconds: v.GetInt("CACHE_REPORT_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Drive: DriveConfig{
			Enabled:         v.GetBool("DRIVE_ENABLED"),
			CredentialsJSON: v.GetString("DRIVE_CREDENTIALS_JSON"),
			FolderPath:      v.GetString("DRIVE_FOLDER_PATH"),
		},
		Engine: EngineConfig{
			HorizonDays:            v.GetInt("ENGINE_HORIZON_DAYS"),
			ServiceLevel:           v.GetFloat64("ENGINE_SERVICE_LEVEL"),
			LeadTimeDays:           v.GetInt("ENGINE_LEAD_TIME_DAYS"),
			HoldingCostPerUnitDay:  v.GetFloat64("ENGINE_HOLDING_COST_PER_UNIT_DAY"),
			StockoutPenaltyPerUnit: v.GetFloat64("ENGINE_STOCKOUT_PENALTY_PER_UNIT"),
			CostFractionOfBase:     v.GetFloat64("ENGINE_COST_FRACTION_OF_BASE_PRICE"),
			MarkdownGrid:           grid,
			InventoryDaysOfSupply:  v.GetFloat64("ENGINE_INVENTORY_DAYS_OF_SUPPLY"),
			InitialOnHandDays:      v.GetFloat64("ENGINE_INITIAL_ON_HAND_DAYS"),
			MaxItemsPerStore:       v.GetInt("ENGINE_MAX_ITEMS_PER_STORE"),
			MinItemsPerCat:         v.GetInt("ENGINE_MIN_ITEMS_PER_CAT"),
			FallbackElasticity:     v.GetFloat64("ENGINE_FALLBACK_ELASTICITY"),
			MinElasticityObs:       v.GetInt("ENGINE_MIN_ELASTICITY_OBS"),
			PricingTopSeries:       v.GetInt("ENGINE_PRICING_TOP_SERIES"),
			PricingImpactTopN:      v.GetInt("ENGINE_PRICING_IMPACT_TOP_N"),
			InventoryTopN:          v.GetInt("ENGINE_INVENTORY_TOP_N"),
			Workers:                v.GetInt("ENGINE_WORKERS"),
			Model:                  strings.ToLower(v.GetString("ENGINE_MODEL")),
			RidgeLambda:            v.GetFloat64("ENGINE_RIDGE_LAMBDA"),
		},
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultEngineConfig returns the engine defaults without reading the environment
func DefaultEngineConfig() EngineConfig {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(fmt.Sprintf("invalid engine defaults: %v", err))
	}
	return cfg.Engine
}

// parseGrid reads a comma-separated list of markdown fractions
func parseGrid(s string) ([]float64, error) {
	var grid []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("ENGINE_MARKDOWN_GRID: invalid value %q: %w", part, err)
		}
		grid = append(grid, f)
	}
	return grid, nil
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to create directory")
		}
	}
}
