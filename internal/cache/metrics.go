package cache

// Metrics 接收缓存引擎的事件计数，实现需并发安全。
type Metrics interface {
	Hit()
	Miss()
	Stale()
	Busy()
	Generated()
	GeneratorFailed()
	Evicted(n int)
}

// NopMetrics 丢弃全部事件。
type NopMetrics struct{}

func (NopMetrics) Hit()             {}
func (NopMetrics) Miss()            {}
func (NopMetrics) Stale()           {}
func (NopMetrics) Busy()            {}
func (NopMetrics) Generated()       {}
func (NopMetrics) GeneratorFailed() {}
func (NopMetrics) Evicted(int)      {}

var _ Metrics = NopMetrics{}
