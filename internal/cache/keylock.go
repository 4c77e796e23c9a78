package cache

// claim 在进程内登记 Slot 正在生成，避免同进程的多个请求争抢同一个锁文件。
// 与锁文件一样不阻塞：已被登记时返回 false，调用方走 busy 分支。
func (c *Cache) claim(id string) (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.inflight[id]; held {
		return nil, false
	}
	c.inflight[id] = struct{}{}
	return func() {
		c.mu.Lock()
		delete(c.inflight, id)
		c.mu.Unlock()
	}, true
}
