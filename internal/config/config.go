package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env（敏感信息 + APP_ENV）
//  2. 根据 APP_ENV 加载 configs/{env}.yaml
//  3. 环境变量覆盖，构建最终配置
func Load() *Config {
	env := parseEnv(getEnv("APP_ENV", "dev"))
	loadEnvFiles(env)
	// .env 可能改写 APP_ENV
	env = parseEnv(getEnv("APP_ENV", string(env)))

	yamlCfg := loadYAMLConfig(env)

	dbPassword := getEnv("DB_PASSWORD", "")
	yamlCfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	cfg := &Config{
		Env:     env,
		APIPort: getEnv("API_PORT", yamlCfg.Server.Port),

		DatabaseDriver: detectDatabaseDriver(yamlCfg.Database.Driver, os.Getenv("DATABASE_URL")),
		DatabaseURL:    firstEnv("DATABASE_URL", "MONGO_URI"),
		DatabaseName:   yamlCfg.Database.Name,

		RedisEnabled: yamlCfg.Redis.Enabled,
		RedisURL:     getEnv("REDIS_URL", buildRedisURL(yamlCfg.Redis)),

		JWTSecret: os.Getenv("JWT_SECRET"),
		Auth:      yamlCfg.Auth,

		SMTP:         yamlCfg.SMTP,
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = buildDatabaseURL(yamlCfg.Database, dbPassword)
	}
	if os.Getenv("REDIS_URL") != "" {
		cfg.RedisEnabled = true
	}

	cfg.Auth.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "mongodb", Host: "localhost", Port: 27017, Name: "account_admin", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Auth: AuthConfig{
			TokenTTL:      24 * time.Hour,
			BcryptCost:    12,
			ResetTokenTTL: 10 * time.Minute,
			MaxAttempts:   10,
			AttemptWindow: 15 * time.Minute,
		},
		SMTP: SMTPConfig{Host: "localhost", Port: 1025, From: "Account Admin <no-reply@localhost>"},
	}

	paths := effectiveConfigPaths()

	// common.yaml（公共配置）
	for _, base := range paths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range paths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			cfg.loadedFrom = path
			break
		}
	}

	return cfg
}

// validate 验证并填充认证默认值
func (a *AuthConfig) validate() {
	if a.TokenTTL == 0 {
		a.TokenTTL = 24 * time.Hour
	}
	if a.BcryptCost == 0 {
		a.BcryptCost = 12
	}
	if a.ResetTokenTTL == 0 {
		a.ResetTokenTTL = 10 * time.Minute
	}
	if a.MaxAttempts == 0 {
		a.MaxAttempts = 10
	}
	if a.AttemptWindow == 0 {
		a.AttemptWindow = 15 * time.Minute
	}
}
