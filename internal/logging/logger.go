package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/any-hub/pagecache/internal/config"
)

// InitLogger 根据全局配置初始化 JSON 结构化日志，未配置文件时输出到 stdout。
func InitLogger(cfg config.GlobalConfig) (*logrus.Logger, error) {
	return InitLoggerWithConsole(cfg, os.Stdout)
}

// InitLoggerWithConsole 与 InitLogger 相同，但允许指定控制台输出。
// process/ls 等命令的 stdout 承载页面内容，日志必须改写到 stderr。
func InitLoggerWithConsole(cfg config.GlobalConfig, console io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("无法解析日志级别: %w", err)
	}

	output, outErr := buildOutput(cfg, console)
	if outErr != nil {
		fmt.Fprintf(os.Stderr, "logger_fallback: %v\n", outErr)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(output)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})

	// cache.Log 使用全局 logger，保持两者输出一致
	logrus.SetFormatter(logger.Formatter)
	logrus.SetOutput(logger.Out)
	logrus.SetLevel(logger.GetLevel())

	if outErr != nil {
		logger.WithFields(logrus.Fields{
			"action": "logger_fallback",
			"path":   cfg.LogFilePath,
		}).Warn(outErr.Error())
	}

	return logger, nil
}

// buildOutput 根据配置创建日志输出 Writer；失败时降级到 console 并返回错误。
func buildOutput(cfg config.GlobalConfig, console io.Writer) (io.Writer, error) {
	if console == nil {
		console = os.Stdout
	}
	if cfg.LogFilePath == "" {
		return console, nil
	}

	dir := filepath.Dir(cfg.LogFilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return console, fmt.Errorf("创建日志目录失败: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFilePath,
		MaxSize:    cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   cfg.LogCompress,
		LocalTime:  true,
	}
	return rotator, nil
}
