package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"learnhub/internal/logger"

	"gopkg.in/yaml.v3"
)

// BuildDefaultUseEmbed 用于通过 -ldflags 注入发布版本的默认嵌入开关（"true"/"1" 为开启）
// 在未设置环境变量 CATALOG_USE_EMBED 时，此值作为默认值生效
var BuildDefaultUseEmbed = ""

// Config 应用程序配置结构
// 包含客户端、会话、本地沙箱服务与日志相关的所有配置项
type Config struct {
	// API 远程课程服务配置
	API     APIConfig     `json:"api" yaml:"api"`
	Session SessionConfig `json:"session" yaml:"session"`
	// Server 本地沙箱服务监听配置
	Server  ServerConfig  `json:"server" yaml:"server"`
	Catalog CatalogConfig `json:"catalog" yaml:"catalog"`
	Auth    AuthConfig    `json:"auth" yaml:"auth"`
	Log     LogConfig     `json:"log" yaml:"log"`
}

// APIConfig 远程课程服务客户端配置
type APIConfig struct {
	BaseURL   string        `json:"baseUrl" yaml:"baseUrl"`     // 服务根地址，包含 /api 前缀
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`     // 单次请求超时
	UserAgent string        `json:"userAgent" yaml:"userAgent"` // 请求 User-Agent
}

// SessionConfig 会话持久化配置
type SessionConfig struct {
	File string `json:"file" yaml:"file"` // 会话文件路径
}

// ServerConfig 沙箱服务配置
// 定义HTTP服务器的监听地址和端口
type ServerConfig struct {
	Host string `json:"host" yaml:"host"` // 服务器监听地址
	Port int    `json:"port" yaml:"port"` // 服务器监听端口
}

// CatalogConfig 沙箱课程目录与学习记录存储配置
type CatalogConfig struct {
	Dir         string `json:"dir" yaml:"dir"`                 // 课程文件目录路径
	UseEmbed    bool   `json:"useEmbed" yaml:"useEmbed"`       // 是否使用嵌入式FS作为课程数据来源
	UsersFile   string `json:"usersFile" yaml:"usersFile"`     // 沙箱用户列表
	LedgerFile  string `json:"ledgerFile" yaml:"ledgerFile"`   // 报名与进度记录文件
	DatabaseURL string `json:"databaseUrl" yaml:"databaseUrl"` // 设置后改用 PostgreSQL 存储学习记录
}

// AuthConfig 沙箱签发令牌配置
type AuthConfig struct {
	JWTSecret string        `json:"jwtSecret" yaml:"jwtSecret"`
	TokenTTL  time.Duration `json:"tokenTtl" yaml:"tokenTtl"`
}

// LogConfig 日志系统相关配置
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // 日志级别 (debug, info, warn, error)
	Format string `json:"format" yaml:"format"` // 日志格式 (json, text)
	File   string `json:"file" yaml:"file"`     // 日志文件，为空则只输出到终端
}

// Load 加载配置
// 先读取环境变量（不存在时使用默认值），若设置了 LEARNHUB_CONFIG 则再用 YAML 文件覆盖
// 支持的环境变量:
//   - API_URL: 远程课程服务地址 (默认: http://localhost:5000/api)
//   - API_TIMEOUT: 请求超时 (默认: 10s)
//   - SESSION_FILE: 会话文件 (默认: ./data/session.json)
//   - SERVER_HOST / SERVER_PORT: 沙箱服务监听地址 (默认: 0.0.0.0:5000)
//   - CATALOG_DIR: 沙箱课程目录 (默认: ./courses)
//   - CATALOG_USE_EMBED: 是否使用嵌入课程 (默认: false 或由 BuildDefaultUseEmbed 指定)
//   - LEDGER_FILE / DATABASE_URL: 学习记录存储
//   - JWT_SECRET / TOKEN_TTL: 沙箱令牌签发
//   - LOG_LEVEL / LOG_FORMAT / LOG_FILE: 日志
//
// 配置验证失败时返回错误
func Load() (*Config, error) {
	defaultUseEmbed := BuildDefaultUseEmbed == "true" || BuildDefaultUseEmbed == "1"

	cfg := &Config{
		API: APIConfig{
			BaseURL:   getEnv("API_URL", "http://localhost:5000/api"),
			Timeout:   getEnvDuration("API_TIMEOUT", 10*time.Second),
			UserAgent: getEnv("API_USER_AGENT", "learnhub-cli"),
		},
		Session: SessionConfig{
			File: getEnv("SESSION_FILE", "./data/session.json"),
		},
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 5000),
		},
		Catalog: CatalogConfig{
			Dir:         getEnv("CATALOG_DIR", "./courses"),
			UseEmbed:    getEnvBool("CATALOG_USE_EMBED", defaultUseEmbed),
			UsersFile:   getEnv("CATALOG_USERS_FILE", "./data/users.yaml"),
			LedgerFile:  getEnv("LEDGER_FILE", "./data/ledger.json"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "learnhub-sandbox-secret"),
			TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
	}

	if path := os.Getenv("LEARNHUB_CONFIG"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	// 应用全局日志设置，确保后续新建的 Logger 统一遵循配置
	logger.SetGlobalLevel(logger.ParseLogLevel(cfg.Log.Level))
	logger.SetGlobalOptions(logger.Options{Format: cfg.Log.Format, File: cfg.Log.File})

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile 使用 YAML 文件覆盖配置，文件中未出现的字段保持原值
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败 %s: %w", path, err)
	}
	return nil
}

// validateConfig 验证配置的有效性
func validateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api base url: %q", cfg.API.BaseURL)
	}

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("invalid api timeout: %s, must be positive", cfg.API.Timeout)
	}

	// 检查端口范围
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d, must be between 1 and 65535", cfg.Server.Port)
	}

	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("invalid token ttl: %s, must be positive", cfg.Auth.TokenTTL)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s, must be one of: debug, info, warn, error", cfg.Log.Level)
	}

	return nil
}

// Addr 返回沙箱服务监听地址
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数类型的环境变量，如果不存在或转换失败则返回默认值
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		// 记录解析错误但不中断程序
		logger.NewLogger(logger.WARN).Warn("failed to parse %s as integer: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvBool 获取布尔类型的环境变量，如果不存在或转换失败则返回默认值
// 支持的布尔值格式: true, false, 1, 0, t, f, T, F, TRUE, FALSE
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		logger.NewLogger(logger.WARN).Warn("failed to parse %s as boolean: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

// getEnvDuration 获取时长类型的环境变量，支持 "30s" 形式，纯数字按秒处理
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	logger.NewLogger(logger.WARN).Warn("failed to parse %s as duration: %s, using default: %s", key, value, defaultValue)
	return defaultValue
}
