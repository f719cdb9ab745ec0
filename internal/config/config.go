package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"Server"`
	Database  DatabaseConfig  `mapstructure:"Database"`
	RateLimit RateLimitConfig `mapstructure:"RateLimit"`
	Delta     DeltaConfig     `mapstructure:"Delta"`
}

type ServerConfig struct {
	Port       string `mapstructure:"Port"`
	BaseURL    string `mapstructure:"BaseURL"`
	AdminToken string `mapstructure:"AdminToken"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"Host"`
	Port     string `mapstructure:"Port"`
	User     string `mapstructure:"User"`
	Password string `mapstructure:"Password"`
	Name     string `mapstructure:"Name"`
	SSLMode  string `mapstructure:"SSLMode"`
}

// CategoryLimit задает лимит одной категории эндпоинтов.
// FailOpen определяет поведение при недоступности хранилища счетчиков.
type CategoryLimit struct {
	Limit         int  `mapstructure:"Limit"`
	WindowSeconds int  `mapstructure:"WindowSeconds"`
	FailOpen      bool `mapstructure:"FailOpen"`
}

func (c CategoryLimit) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// RateLimitConfig — лимиты по категориям. Пустой RedisAddr означает
// хранение счетчиков в памяти процесса.
type RateLimitConfig struct {
	RedisAddr     string        `mapstructure:"RedisAddr"`
	Metadata      CategoryLimit `mapstructure:"Metadata"`
	Compatibility CategoryLimit `mapstructure:"Compatibility"`
	Delta         CategoryLimit `mapstructure:"Delta"`
}

// DeltaConfig — политика генерации дифференциальных патчей
type DeltaConfig struct {
	MaxRatio               float64 `mapstructure:"MaxRatio"`
	GenerateTimeoutSeconds int     `mapstructure:"GenerateTimeoutSeconds"`
	ExpiryHours            int     `mapstructure:"ExpiryHours"`
	BlockSize              int     `mapstructure:"BlockSize"`
}

func (d DeltaConfig) GenerateTimeout() time.Duration {
	return time.Duration(d.GenerateTimeoutSeconds) * time.Second
}

func (d DeltaConfig) Expiry() time.Duration {
	return time.Duration(d.ExpiryHours) * time.Hour
}

func NewConfig(path string) (*Config, error) {
	v := viper.New()

	// Устанавливаем файл конфигурации
	v.SetConfigFile(path)

	// Привязываем переменные окружения
	v.BindEnv("Database.Host", "DATABASE_HOST")
	v.BindEnv("Database.Port", "DATABASE_PORT")
	v.BindEnv("Database.User", "DATABASE_USER")
	v.BindEnv("Database.Password", "DATABASE_PASSWORD")
	v.BindEnv("Database.Name", "DATABASE_NAME")
	v.BindEnv("Database.SSLMode", "DATABASE_SSLMODE")
	v.BindEnv("Server.Port", "HTTP_PORT")
	v.BindEnv("Server.BaseURL", "BASE_URL")
	v.BindEnv("Server.AdminToken", "ADMIN_TOKEN")
	v.BindEnv("RateLimit.RedisAddr", "REDIS_ADDR")

	// Значения по умолчанию: лимиты и окна — политика развертывания,
	// а не часть алгоритма, поэтому они конфигурируемы
	v.SetDefault("RateLimit.Metadata.Limit", 60)
	v.SetDefault("RateLimit.Metadata.WindowSeconds", 60)
	v.SetDefault("RateLimit.Metadata.FailOpen", true)
	v.SetDefault("RateLimit.Compatibility.Limit", 30)
	v.SetDefault("RateLimit.Compatibility.WindowSeconds", 60)
	v.SetDefault("RateLimit.Compatibility.FailOpen", false)
	v.SetDefault("RateLimit.Delta.Limit", 10)
	v.SetDefault("RateLimit.Delta.WindowSeconds", 60)
	v.SetDefault("RateLimit.Delta.FailOpen", false)

	v.SetDefault("Delta.MaxRatio", 0.5)
	v.SetDefault("Delta.GenerateTimeoutSeconds", 120)
	v.SetDefault("Delta.ExpiryHours", 720)
	v.SetDefault("Delta.BlockSize", 4096)

	// Читаем конфигурацию из файла
	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Warning: using only environment variables: %v\n", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Проверяем переменные окружения напрямую если конфигурация неполная
	if cfg.Database.Host == "" {
		cfg.Database.Host = v.GetString("DATABASE_HOST")
	}
	if cfg.Database.Port == "" {
		cfg.Database.Port = v.GetString("DATABASE_PORT")
	}
	if cfg.Database.User == "" {
		cfg.Database.User = v.GetString("DATABASE_USER")
	}
	if cfg.Database.Password == "" {
		cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = v.GetString("DATABASE_NAME")
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = v.GetString("HTTP_PORT")
	}

	// Проверяем, что все необходимые поля заполнены
	if cfg.Database.Host == "" ||
		cfg.Database.Port == "" ||
		cfg.Database.User == "" ||
		cfg.Database.Password == "" ||
		cfg.Database.Name == "" {
		return nil, fmt.Errorf("database configuration is incomplete: host=%s, port=%s, user=%s, name=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User, cfg.Database.Name)
	}

	// Установка значений по умолчанию
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "2525"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Server.Port)
	}

	if err := validateLimits(&cfg.RateLimit); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validateLimits(rl *RateLimitConfig) error {
	for name, cl := range map[string]CategoryLimit{
		"Metadata":      rl.Metadata,
		"Compatibility": rl.Compatibility,
		"Delta":         rl.Delta,
	} {
		if cl.Limit <= 0 || cl.WindowSeconds <= 0 {
			return fmt.Errorf("rate limit for %s must have positive limit and window", name)
		}
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}
