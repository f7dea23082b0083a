package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigFileEnv переменная окружения с путем к YAML-файлу конфигурации
const ConfigFileEnv = "BIDCOEF_CONFIG"

// Config конфигурация сопоставления, оптимизации и истории
type Config struct {
	// Сопоставление
	MatchThreshold  float64
	TopN            int
	SuggestionLimit int

	// Решатель
	SolverTimeout   time.Duration
	SolverTolerance float64

	// База истории итераций
	DatabasePath    string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Логирование
	LogLevel string

	// Дополнительные синонимы единиц: синоним -> каноническая единица
	UnitAliases map[string]string
}

// fileConfig форма YAML-файла; длительности задаются строками ("30s")
type fileConfig struct {
	Matching struct {
		Threshold       *float64 `yaml:"threshold"`
		TopN            *int     `yaml:"top_n"`
		SuggestionLimit *int     `yaml:"suggestion_limit"`
	} `yaml:"matching"`
	Solver struct {
		Timeout   string   `yaml:"timeout"`
		Tolerance *float64 `yaml:"tolerance"`
	} `yaml:"solver"`
	Database struct {
		Path            string `yaml:"path"`
		MaxOpenConns    *int   `yaml:"max_open_conns"`
		MaxIdleConns    *int   `yaml:"max_idle_conns"`
		ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	} `yaml:"database"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	UnitAliases map[string]string `yaml:"unit_aliases"`
}

// DefaultConfig значения по умолчанию
func DefaultConfig() *Config {
	return &Config{
		MatchThreshold:  0.6,
		TopN:            3,
		SuggestionLimit: 5,
		SolverTimeout:   30 * time.Second,
		SolverTolerance: 1e-9,
		DatabasePath:    "bidcoef.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		LogLevel:        "info",
		UnitAliases:     map[string]string{},
	}
}

// LoadConfig загружает конфигурацию: значения по умолчанию, затем YAML-файл
// из BIDCOEF_CONFIG, затем переменные окружения (включая .env)
func LoadConfig() (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadConfigFile(os.Getenv(ConfigFileEnv))
}

// LoadConfigFile загружает конфигурацию из указанного YAML-файла (пустой путь
// пропускается) и применяет переменные окружения поверх него
func LoadConfigFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := config.applyFile(path); err != nil {
			return nil, err
		}
	}

	config.applyEnv()

	// Валидация
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if fc.Matching.Threshold != nil {
		c.MatchThreshold = *fc.Matching.Threshold
	}
	if fc.Matching.TopN != nil {
		c.TopN = *fc.Matching.TopN
	}
	if fc.Matching.SuggestionLimit != nil {
		c.SuggestionLimit = *fc.Matching.SuggestionLimit
	}

	if fc.Solver.Timeout != "" {
		d, err := time.ParseDuration(fc.Solver.Timeout)
		if err != nil {
			return fmt.Errorf("solver.timeout: %w", err)
		}
		c.SolverTimeout = d
	}
	if fc.Solver.Tolerance != nil {
		c.SolverTolerance = *fc.Solver.Tolerance
	}

	if fc.Database.Path != "" {
		c.DatabasePath = fc.Database.Path
	}
	if fc.Database.MaxOpenConns != nil {
		c.MaxOpenConns = *fc.Database.MaxOpenConns
	}
	if fc.Database.MaxIdleConns != nil {
		c.MaxIdleConns = *fc.Database.MaxIdleConns
	}
	if fc.Database.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(fc.Database.ConnMaxLifetime)
		if err != nil {
			return fmt.Errorf("database.conn_max_lifetime: %w", err)
		}
		c.ConnMaxLifetime = d
	}

	if fc.Logging.Level != "" {
		c.LogLevel = fc.Logging.Level
	}
	for alias, canonical := range fc.UnitAliases {
		c.UnitAliases[alias] = canonical
	}

	return nil
}

func (c *Config) applyEnv() {
	// Сопоставление
	c.MatchThreshold = getEnvFloat("BIDCOEF_MATCH_THRESHOLD", c.MatchThreshold)
	c.TopN = getEnvInt("BIDCOEF_TOP_N", c.TopN)
	c.SuggestionLimit = getEnvInt("BIDCOEF_SUGGESTION_LIMIT", c.SuggestionLimit)

	// Решатель
	c.SolverTimeout = getEnvDuration("BIDCOEF_SOLVER_TIMEOUT", c.SolverTimeout)
	c.SolverTolerance = getEnvFloat("BIDCOEF_SOLVER_TOLERANCE", c.SolverTolerance)

	// База данных
	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns)
	c.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", c.ConnMaxLifetime)

	// Логирование
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// BIDCOEF_UNIT_ALIASES="куб=м3,палет=пал"
	for _, pair := range strings.Split(os.Getenv("BIDCOEF_UNIT_ALIASES"), ",") {
		alias, canonical, ok := strings.Cut(pair, "=")
		alias, canonical = strings.TrimSpace(alias), strings.TrimSpace(canonical)
		if ok && alias != "" && canonical != "" {
			c.UnitAliases[alias] = canonical
		}
	}
}

// Validate валидирует конфигурацию
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %v", c.MatchThreshold)
	}

	if c.TopN < 1 {
		return fmt.Errorf("top n must be positive, got %d", c.TopN)
	}

	if c.SuggestionLimit < 1 {
		return fmt.Errorf("suggestion limit must be positive, got %d", c.SuggestionLimit)
	}

	if c.SolverTimeout <= 0 {
		return fmt.Errorf("solver timeout must be positive, got %v", c.SolverTimeout)
	}

	if c.SolverTolerance <= 0 {
		return fmt.Errorf("solver tolerance must be positive, got %v", c.SolverTolerance)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}

	if c.MaxOpenConns < 1 {
		return fmt.Errorf("max open connections must be positive")
	}

	if c.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	return nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения как float64 или возвращает значение по умолчанию
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
