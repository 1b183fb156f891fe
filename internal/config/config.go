package config

import (
	"github.com/spf13/viper"
)

// Config 配置文件结构体
type Config struct {
	Version string `mapstructure:"version"`

	Host struct {
		DevToolsURL      string `mapstructure:"devtools_url"`
		ProcessTimeoutMS int    `mapstructure:"process_timeout_ms"`
	} `mapstructure:"host"`

	Sqlite struct {
		Dsn    string `mapstructure:"dsn"`
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"sqlite"`

	Log struct {
		Level  string   `mapstructure:"level"`
		Writer []string `mapstructure:"writer"`
		File   string   `mapstructure:"file"`
	} `mapstructure:"log"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{Version: "1.0.0"}
	cfg.Host.DevToolsURL = "http://127.0.0.1:9222"
	cfg.Host.ProcessTimeoutMS = 3000
	cfg.Sqlite.Dsn = "db.sqlite3"
	cfg.Sqlite.Prefix = "mockrelay_"
	cfg.Log.Level = "debug"
	cfg.Log.Writer = []string{"console", "file"}
	cfg.Log.File = "mockrelay.log"
	return cfg
}

// Load 从指定文件加载配置，文件缺失时返回默认值
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("mockrelay")
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("MOCKRELAY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound && path == "" {
			return cfg, nil
		}
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
