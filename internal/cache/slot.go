package cache

import (
	"path/filepath"
	"strings"
)

const lockSuffix = ".lock"

// Paths 描述一个 Slot 在磁盘上的全部位置，纯计算得出，不触发任何 I/O。
type Paths struct {
	ID      string
	Content string
	Lock    string
}

// Resolve 根据缓存根目录与 key 推导正文与锁文件路径。
func Resolve(root, key string) Paths {
	return resolveID(root, SlotID(key))
}

func resolveID(root, id string) Paths {
	content := filepath.Join(root, id)
	return Paths{
		ID:      id,
		Content: content,
		Lock:    content + lockSuffix,
	}
}

// IsSlotName 判断目录项是否为真实 Slot（恰好 16 位小写十六进制），
// 锁文件与写入中的临时文件都会被排除。
func IsSlotName(name string) bool {
	if len(name) != slotIDLen {
		return false
	}
	return isLowerHex(name)
}

// isTempName 识别 atomic.WriteFile 留下的临时文件：<slot id> 后接随机数字。
func isTempName(name string) bool {
	if len(name) <= slotIDLen || strings.HasSuffix(name, lockSuffix) {
		return false
	}
	if !isLowerHex(name[:slotIDLen]) {
		return false
	}
	for _, r := range name[slotIDLen:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLowerHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
