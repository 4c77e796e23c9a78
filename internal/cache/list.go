package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

const listBatch = 128

// Entry 是一个 Slot 的诊断信息。
type Entry struct {
	ID      string    `json:"id"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// List 惰性枚举根目录下的真实 Slot。每次迭代都重新读取目录，不缓存任何状态。
func (c *Cache) List() iter.Seq2[Entry, error] {
	return listRoot(c.root)
}

func listRoot(root string) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		dir, err := os.Open(root)
		if err != nil {
			yield(Entry{}, ioError("open", root, err))
			return
		}
		defer dir.Close()

		for {
			batch, err := dir.ReadDir(listBatch)
			for _, de := range batch {
				if !IsSlotName(de.Name()) {
					continue
				}
				info, infoErr := de.Info()
				if infoErr != nil {
					if errors.Is(infoErr, fs.ErrNotExist) {
						continue
					}
					if !yield(Entry{}, ioError("stat", de.Name(), infoErr)) {
						return
					}
					continue
				}
				if !info.Mode().IsRegular() {
					continue
				}
				if !yield(Entry{ID: de.Name(), Size: info.Size(), ModTime: info.ModTime()}, nil) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Entry{}, ioError("readdir", root, err))
				}
				return
			}
		}
	}
}

// WriteListing 以人类可读的表格输出全部 Slot。
func (c *Cache) WriteListing(w io.Writer) error {
	return writeListing(w, c.List(), c.now())
}

func writeListing(w io.Writer, entries iter.Seq2[Entry, error], now time.Time) error {
	var (
		count int
		total int64
	)
	for e, err := range entries {
		if err != nil {
			return err
		}
		count++
		total += e.Size
		if _, err := fmt.Fprintf(w, "%s  %s  %10d  %s\n",
			e.ID,
			e.ModTime.Format("2006-01-02 15:04:05"),
			e.Size,
			humanize.RelTime(e.ModTime, now, "ago", "from now"),
		); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d slots, %s\n", count, humanize.IBytes(uint64(total)))
	return err
}

// List 把 root 下的 Slot 列表写入 w，成功返回 0。
func List(root string, w io.Writer) int {
	if err := writeListing(w, listRoot(root), time.Now()); err != nil {
		Log("cache ls %s failed: %v", root, err)
		return 1
	}
	return 0
}

// Logf 输出一行带时间戳的诊断日志，任何写入失败都不会影响调用方。
func (c *Cache) Logf(format string, args ...any) {
	c.logger.WithField("action", "cache_log").Infof(format, args...)
}

// Log 使用 logrus 全局 logger 输出诊断日志，供没有 Cache 实例的调用方使用。
func Log(format string, args ...any) {
	logrus.WithField("action", "cache_log").Infof(format, args...)
}
