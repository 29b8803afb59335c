package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ProviderConfig 翻译后端配置
type ProviderConfig struct {
	// APIType 后端类型：openai 或 raw
	APIType     string  `mapstructure:"api_type"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Config 保存字幕翻译器的所有配置
type Config struct {
	SourceLang string `mapstructure:"source_lang"`
	TargetLang string `mapstructure:"target_lang"`
	Style      string `mapstructure:"style"`

	ChunkSize     int `mapstructure:"chunk_size"`     // 每块最多的字幕行数
	ContextWindow int `mapstructure:"context_window"` // 块前后附带的上下文行数
	MaxRetries    int `mapstructure:"max_retries"`    // 每块最多的后端调用尝试次数

	RequestsPerMinute int `mapstructure:"requests_per_minute"` // 滚动60秒窗口内的出站调用上限
	RequestTimeout    int `mapstructure:"request_timeout"`     // 单次后端调用超时（秒）

	ValidationLevel string            `mapstructure:"validation_level"` // none / basic / strict
	Glossary        map[string]string `mapstructure:"glossary"`         // 源术语到目标术语的映射
	ForbiddenTerms  []string          `mapstructure:"forbidden_terms"`  // 译文中禁止出现的词

	TemplateName      string `mapstructure:"template_name"`       // 按名称请求的提示词模板
	UserTemplatesPath string `mapstructure:"user_templates_path"` // 用户模板TOML文件路径

	UseCache bool `mapstructure:"use_cache"`
	Debug    bool `mapstructure:"debug"`

	Provider ProviderConfig `mapstructure:"provider"`
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("source_lang", "en")
	v.SetDefault("target_lang", "zh")
	v.SetDefault("style", "natural")
	v.SetDefault("chunk_size", 20)
	v.SetDefault("context_window", 3)
	v.SetDefault("max_retries", 3)
	v.SetDefault("requests_per_minute", 20)
	v.SetDefault("request_timeout", 120)
	v.SetDefault("validation_level", "basic")
	v.SetDefault("use_cache", true)
	v.SetDefault("provider.api_type", "openai")
	v.SetDefault("provider.temperature", 0.3)
	v.SetDefault("provider.max_tokens", 4096)
}

// Load 加载配置
// 优先使用显式指定的文件，否则在家目录和当前目录搜索 .subtrans.yaml；
// 环境变量以 SUBTRANS_ 为前缀覆盖同名配置项
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SUBTRANS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv 只对 viper 已注册的键生效，
	// 没有默认值的键必须显式绑定才能被环境变量覆盖
	for _, key := range []string{
		"provider.api_key",
		"provider.base_url",
		"provider.model",
		"template_name",
		"user_templates_path",
		"forbidden_terms",
	} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".subtrans")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			// 没有配置文件时全部使用默认值
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize)
	}
	if c.ContextWindow < 0 {
		return fmt.Errorf("context_window must not be negative, got %d", c.ContextWindow)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1, got %d", c.MaxRetries)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("requests_per_minute must be at least 1, got %d", c.RequestsPerMinute)
	}
	if c.RequestTimeout < 1 {
		return fmt.Errorf("request_timeout must be at least 1 second, got %d", c.RequestTimeout)
	}

	switch c.Provider.APIType {
	case "openai", "raw":
	case "":
		return fmt.Errorf("provider.api_type must be specified")
	default:
		return fmt.Errorf("unsupported provider api_type: %s", c.Provider.APIType)
	}

	return nil
}
