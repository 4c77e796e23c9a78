package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultLockTimeout 是锁文件被视为遗弃（持有者崩溃）前的最长存活时间。
const DefaultLockTimeout = 10 * time.Minute

// Options 控制 Cache 的行为，零值字段在 New 中补默认值。
type Options struct {
	// Root 为缓存根目录，所有 Slot 平铺在其中。
	Root string
	// Size 为最大 Slot 数；<= 0 表示关闭缓存，生成器直接输出。
	Size int
	// LockTimeout 超过该时长的锁文件可被后来者回收。
	LockTimeout time.Duration
	Logger      *logrus.Logger
	Metrics     Metrics
	// Now 用于新鲜度判断与发布后的 mtime，测试可注入固定时钟。
	Now func() time.Time
}

// Cache 是磁盘页面缓存引擎，同一进程内可并发使用。
type Cache struct {
	root        string
	size        int
	lockTimeout time.Duration
	logger      *logrus.Logger
	metrics     Metrics
	now         func() time.Time
	pid         int
	host        string

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New 以 opts.Root 为根目录构建缓存，目录不存在时自动创建。
func New(opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if opts.Size > 0 {
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, ioError("mkdir", abs, err)
		}
	}

	c := &Cache{
		root:        abs,
		size:        opts.Size,
		lockTimeout: opts.LockTimeout,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		now:         opts.Now,
		pid:         os.Getpid(),
		inflight:    make(map[string]struct{}),
	}
	if c.lockTimeout <= 0 {
		c.lockTimeout = DefaultLockTimeout
	}
	if c.logger == nil {
		c.logger = logrus.StandardLogger()
	}
	if c.metrics == nil {
		c.metrics = NopMetrics{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.host, _ = os.Hostname()
	return c, nil
}

// Root 返回缓存根目录的绝对路径。
func (c *Cache) Root() string {
	return c.root
}

// Size 返回最大 Slot 数。
func (c *Cache) Size() int {
	return c.size
}

// Enabled 报告缓存是否生效（Size > 0）。
func (c *Cache) Enabled() bool {
	return c.size > 0
}

// Paths 返回 key 对应的磁盘路径。
func (c *Cache) Paths(key string) Paths {
	return Resolve(c.root, key)
}

func (c *Cache) fields(p Paths, key string) logrus.Fields {
	return logrus.Fields{
		"action": "cache",
		"slot":   p.ID,
		"key":    key,
	}
}
