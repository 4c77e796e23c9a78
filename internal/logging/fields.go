package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供页面请求的路径、Slot 与缓存结果字段，供代理请求日志复用。
func RequestFields(method, path, slot, outcome string) logrus.Fields {
	return logrus.Fields{
		"method":  method,
		"path":    path,
		"slot":    slot,
		"outcome": outcome,
	}
}

// CacheFields 描述缓存引擎配置，启动与 ls/warm 命令共用。
func CacheFields(root string, size int) logrus.Fields {
	return logrus.Fields{
		"cache_root": root,
		"cache_size": size,
	}
}
