// Package config 统一配置管理
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	密码/密钥只存在 .env 文件中（YAML 中不存储任何密码）。
//	JWT_SECRET、DB_PASSWORD、SMTP_PASSWORD、ADMIN_PASSWORD 均从环境变量读取。
//
// 环境：
//   - 开发: APP_ENV=dev → configs/dev.yaml + .env.dev
//   - 测试: APP_ENV=test → configs/test.yaml + .env.test
//   - 生产: APP_ENV=prod → /etc/account-admin/prod.yaml，密码由 systemd 注入
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	SMTP     SMTPConfig     `yaml:"smtp"`

	loadedFrom string // 实际加载的文件路径
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig 数据库配置，driver 决定启用哪个存储实现
type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // mongodb | postgres | sqlite
	URI     string `yaml:"uri"`    // mongodb 连接串（可选，覆盖 host/port）
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
	Path    string `yaml:"path"` // sqlite 数据文件路径
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // 从 REDIS_PASSWORD 环境变量读取
}

// AuthConfig 认证相关参数，密钥从 JWT_SECRET 环境变量读取
type AuthConfig struct {
	TokenTTL      time.Duration `yaml:"token_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost"`
	ResetTokenTTL time.Duration `yaml:"reset_token_ttl"`
	MaxAttempts   int           `yaml:"max_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`
}

// SMTPConfig 邮件发送配置，用户名/密码从环境变量读取
type SMTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	From string `yaml:"from"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env     Environment
	APIPort string

	DatabaseDriver string
	DatabaseURL    string
	DatabaseName   string // mongodb 数据库名

	RedisEnabled bool
	RedisURL     string

	JWTSecret string
	Auth      AuthConfig

	SMTP         SMTPConfig
	SMTPUsername string
	SMTPPassword string

	AdminEmail    string
	AdminPassword string
}
