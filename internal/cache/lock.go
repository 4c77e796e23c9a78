package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// maxLockAttempts 限制回收遗弃锁后的重试次数，避免与其他回收者无限循环。
const maxLockAttempts = 3

// fileLock 代表已持有的生成权，Release 必须在所有退出路径上调用。
type fileLock struct {
	c    *Cache
	path string
}

// tryAcquire 通过 O_CREATE|O_EXCL 原子创建锁文件，并发尝试中恰有一个成功。
// 锁已被持有时返回 ErrLockBusy；超过 lockTimeout 的锁视为遗弃并被回收。
func (c *Cache) tryAcquire(path string) (*fileLock, error) {
	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = fmt.Fprintf(f, "pid=%d host=%s at=%s\n", c.pid, c.host, c.now().UTC().Format(time.RFC3339))
			if closeErr := f.Close(); closeErr != nil {
				_ = os.Remove(path)
				return nil, ioError("lock", path, closeErr)
			}
			return &fileLock{c: c, path: path}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, ioError("lock", path, err)
		}

		reclaimed, err := c.reclaimStale(path)
		if err != nil {
			return nil, err
		}
		if !reclaimed {
			return nil, ErrLockBusy
		}
	}
	return nil, fmt.Errorf("%w: reclaimed lock was taken again", ErrLockBusy)
}

// reclaimStale 删除存活时间超过 lockTimeout 的锁。
// 两个回收者可能在极短窗口内都认为自己持锁，发布走 rename 保证最后写入者整体生效。
func (c *Cache) reclaimStale(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// 持有者刚刚释放
			return true, nil
		}
		return false, ioError("stat lock", path, err)
	}
	age := c.now().Sub(info.ModTime())
	if age <= c.lockTimeout {
		return false, nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, ioError("reclaim lock", path, err)
	}
	c.logger.WithFields(logrus.Fields{
		"action": "lock_reclaim",
		"lock":   path,
		"age":    age.String(),
	}).Warn("stale cache lock reclaimed")
	return true, nil
}

// Release 删除锁文件；失败只记录日志，不影响调用方。
func (l *fileLock) Release() {
	if l == nil {
		return
	}
	err := os.Remove(l.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return
	}
	l.c.logger.WithError(err).WithField("lock", l.path).Warn("cache_lock_release_failed")
}
