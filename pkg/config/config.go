// Package config 服务配置的定义、加载与校验
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务配置（对外导出）
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Database struct {
		Type string `yaml:"type"` // sqlite/mysql/postgres
		DSN  string `yaml:"dsn"`
	} `yaml:"database"`

	Inference struct {
		BackendURL  string        `yaml:"backend_url"`
		APIKey      string        `yaml:"api_key"`
		Model       string        `yaml:"model"`
		Temperature float64       `yaml:"temperature"`
		MaxTokens   int           `yaml:"max_tokens"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"inference"`

	Tools struct {
		OutboundURL string        `yaml:"outbound_url"` // 消息网关地址，空则仅记日志
		HTTPTimeout time.Duration `yaml:"http_timeout"`
	} `yaml:"tools"`

	Usage struct {
		// 单次Execution的用量上限，0表示不限额
		MaxTokensPerExecution  int     `yaml:"max_tokens_per_execution"`
		MaxCreditsPerExecution float64 `yaml:"max_credits_per_execution"`
	} `yaml:"usage"`
}

// LoadConfig 从YAML文件加载配置（对外导出）
// 配置值支持${ENV_VAR}环境变量引用；缺省字段填充默认值
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	expanded := os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig 默认配置（对外导出）
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 应用默认值（对外导出）
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.DSN == "" {
		c.Database.DSN = "./automation.db"
	}
	if c.Inference.Model == "" {
		c.Inference.Model = "default"
	}
	if c.Inference.Temperature <= 0 {
		c.Inference.Temperature = 0.7
	}
	if c.Inference.MaxTokens <= 0 {
		c.Inference.MaxTokens = 2048
	}
	if c.Inference.Timeout <= 0 {
		c.Inference.Timeout = 120 * time.Second
	}
	if c.Tools.HTTPTimeout <= 0 {
		c.Tools.HTTPTimeout = 30 * time.Second
	}
}

// Validate 校验配置（对外导出）
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql", "postgres", "postgresql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("数据库DSN不能为空")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("无效的端口: %d", c.Server.Port)
	}
	return nil
}

// Addr 服务监听地址（对外导出）
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
