package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
// 负值表示“永不过期”，例如 TTL = -1。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	CacheRoot       string   `mapstructure:"CacheRoot"`
	CacheSize       int      `mapstructure:"CacheSize"`
	CacheTTL        Duration `mapstructure:"CacheTTL"`
	LockTimeout     Duration `mapstructure:"LockTimeout"`
	Origin          string   `mapstructure:"Origin"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	WarmConcurrency int      `mapstructure:"WarmConcurrency"`
}

// RuleConfig 为某个路径前缀指定独立 TTL，例如静态页面永不过期、动态页面短 TTL。
type RuleConfig struct {
	Name   string   `mapstructure:"Name"`
	Prefix string   `mapstructure:"Prefix"`
	TTL    Duration `mapstructure:"TTL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Rules  []RuleConfig `mapstructure:"Rule"`
}

// TTLFor 返回 path 生效的 TTL：最长前缀匹配的 Rule 优先，否则回退全局 CacheTTL。
func (c *Config) TTLFor(path string) time.Duration {
	best := -1
	ttl := c.Global.CacheTTL.DurationValue()
	for _, rule := range c.Rules {
		if strings.HasPrefix(path, rule.Prefix) && len(rule.Prefix) > best {
			best = len(rule.Prefix)
			ttl = rule.TTL.DurationValue()
		}
	}
	return ttl
}

// CacheEnabled 表示当前配置是否启用磁盘缓存。
func (c *Config) CacheEnabled() bool {
	return c.Global.CacheSize > 0
}
