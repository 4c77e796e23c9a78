package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
		return newFieldError("Global.LogLevel", fmt.Sprintf("无法识别: %s", g.LogLevel))
	}
	if strings.TrimSpace(g.CacheRoot) == "" {
		return newFieldError("Global.CacheRoot", "不能为空")
	}
	if g.CacheSize < 0 {
		return newFieldError("Global.CacheSize", "不能为负数（0 表示关闭缓存）")
	}
	if g.LockTimeout.DurationValue() <= 0 {
		return newFieldError("Global.LockTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.WarmConcurrency <= 0 {
		return newFieldError("Global.WarmConcurrency", "必须大于 0")
	}
	if g.Origin != "" {
		if err := validateOrigin(g.Origin); err != nil {
			return fmt.Errorf("Global.Origin: %w", err)
		}
	}

	seenNames := map[string]struct{}{}
	for i := range c.Rules {
		rule := &c.Rules[i]
		if rule.Name == "" {
			return newFieldError("Rule[].Name", "不能为空")
		}
		if _, exists := seenNames[rule.Name]; exists {
			return newFieldError(ruleField(rule.Name, "Name"), "重复")
		}
		seenNames[rule.Name] = struct{}{}

		if !strings.HasPrefix(rule.Prefix, "/") {
			return newFieldError(ruleField(rule.Name, "Prefix"), "必须以 / 开头")
		}
	}

	return nil
}

// RequireOrigin 在需要回源的命令（serve/warm）前调用。
func (c *Config) RequireOrigin() error {
	if strings.TrimSpace(c.Global.Origin) == "" {
		return newFieldError("Global.Origin", "serve/warm 需要配置源站地址")
	}
	return nil
}

func validateOrigin(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}
