package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 是可覆盖配置项的环境变量前缀，例如 PAGECACHE_CACHEROOT。
const EnvPrefix = "PAGECACHE"

// LoadOptions 控制配置来源。
type LoadOptions struct {
	// Path 为 TOML 配置文件路径，空值时使用 config.toml。
	Path string
	// AllowMissing 为 true 时配置文件不存在不算错误，仅使用默认值、环境变量与 flag。
	AllowMissing bool
	// Flags 中已设置的 flag 会覆盖同名配置项（flag 名通过 FlagKeys 映射）。
	Flags *pflag.FlagSet
}

// FlagKeys 将 CLI flag 名映射到配置键。
var FlagKeys = map[string]string{
	"root":         "CacheRoot",
	"size":         "CacheSize",
	"origin":       "Origin",
	"listen":       "ListenPort",
	"log-level":    "LogLevel",
	"lock-timeout": "LockTimeout",
}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	return LoadWith(LoadOptions{Path: path})
}

// LoadWith 按 默认值 → 配置文件 → 环境变量 → flag 的优先级构建配置。
func LoadWith(opts LoadOptions) (*Config, error) {
	path := opts.Path
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !opts.AllowMissing || !isNotFound(err) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	if err := bindFlags(v, opts.Flags); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(cfg.Global.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheRoot = absRoot

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheRoot", "./cache")
	v.SetDefault("CacheSize", 300)
	v.SetDefault("CacheTTL", 300)
	v.SetDefault("LockTimeout", "10m")
	v.SetDefault("Origin", "")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("WarmConcurrency", 4)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LockTimeout.DurationValue() == 0 {
		g.LockTimeout = Duration(10 * time.Minute)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.WarmConcurrency == 0 {
		g.WarmConcurrency = 4
	}
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("绑定参数 --%s 失败: %w", name, err)
		}
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
