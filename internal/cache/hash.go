package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// slotIDLen 是 Slot 文件名长度：64 位哈希的 16 位十六进制表示。
const slotIDLen = 16

// Hash 返回 key 的 64 位 xxhash，无随机种子，跨进程、跨重启稳定。
func Hash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// SlotID 将 key 映射为定长、可直接作为文件名的标识。
// 不同 key 碰撞时会共享同一个 Slot，这是已知且被接受的限制。
func SlotID(key string) string {
	return FormatID(Hash(key))
}

// FormatID 把哈希值格式化为 Slot 文件名。
func FormatID(h uint64) string {
	return fmt.Sprintf("%016x", h)
}
