package cache

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

type slotState int

const (
	slotAbsent slotState = iota
	slotStale
	slotFresh
)

func (s slotState) String() string {
	switch s {
	case slotFresh:
		return "fresh"
	case slotStale:
		return "stale"
	default:
		return "absent"
	}
}

// IsFresh 以当前时间判断 path 处的内容是否仍在 ttl 内。
// ttl <= 0 表示永不过期；文件不存在视为不新鲜。
func IsFresh(path string, ttl time.Duration) bool {
	state, _ := inspectSlot(path, ttl, time.Now())
	return state == slotFresh
}

// inspectSlot 只做一次 stat。发布走 rename，因此读到的 mtime 总属于某个完整版本。
func inspectSlot(path string, ttl time.Duration, now time.Time) (slotState, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return slotAbsent, nil
		}
		return slotAbsent, err
	}
	if !info.Mode().IsRegular() {
		return slotAbsent, nil
	}
	if ttl <= 0 {
		return slotFresh, nil
	}
	if now.Sub(info.ModTime()) < ttl {
		return slotFresh, nil
	}
	return slotStale, nil
}
