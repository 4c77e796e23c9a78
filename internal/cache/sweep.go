package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweep 将 Slot 数量压回 Size 以内，按 mtime 从旧到新删除，mtime 相同按 ID 排序。
// 删除失败（例如已被其他进程删除）只记录日志，返回实际删除的数量。
func (c *Cache) Sweep() (int, error) {
	return c.sweep("")
}

// sweep 跳过 keep 对应的 Slot，保证刚发布的内容不会在输出前被自己淘汰。
func (c *Cache) sweep(keep string) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	dirEntries, err := os.ReadDir(c.root)
	if err != nil {
		return 0, ioError("readdir", c.root, err)
	}

	now := c.now()
	slots := make([]Entry, 0, len(dirEntries))
	kept := 0
	for _, de := range dirEntries {
		name := de.Name()
		if isTempName(name) {
			c.removeOrphan(name, now)
			continue
		}
		if !IsSlotName(name) {
			continue
		}
		if name == keep {
			kept++
			continue
		}
		info, err := de.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		slots = append(slots, Entry{ID: name, Size: info.Size(), ModTime: info.ModTime()})
	}

	excess := len(slots) + kept - c.size
	if excess <= 0 {
		return 0, nil
	}
	sortOldestFirst(slots)
	if excess > len(slots) {
		excess = len(slots)
	}

	removed := 0
	for _, victim := range slots[:excess] {
		path := filepath.Join(c.root, victim.ID)
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				c.logger.WithError(err).WithField("slot", victim.ID).Warn("cache_evict_failed")
			}
			continue
		}
		removed++
	}
	if removed > 0 {
		c.metrics.Evicted(removed)
		c.logger.WithFields(logrus.Fields{
			"action":  "cache_sweep",
			"evicted": removed,
			"limit":   c.size,
		}).Debug("cache_sweep_complete")
	}
	return removed, nil
}

// removeOrphan 清理崩溃写入者遗留的临时文件，只处理早于 lockTimeout 的文件。
func (c *Cache) removeOrphan(name string, now time.Time) {
	path := filepath.Join(c.root, name)
	info, err := os.Stat(path)
	if err != nil || now.Sub(info.ModTime()) <= c.lockTimeout {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		c.logger.WithError(err).WithField("path", path).Warn("cache_orphan_remove_failed")
	}
}

func sortOldestFirst(slots []Entry) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].ModTime.Equal(slots[j].ModTime) {
			return slots[i].ModTime.Before(slots[j].ModTime)
		}
		return slots[i].ID < slots[j].ID
	})
}
