package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrIO 表示缓存目录下的创建/打开/重命名/删除失败。
	ErrIO = errors.New("cache io failed")
	// ErrLockBusy 表示另一个进程正在生成同一 Slot。
	ErrLockBusy = errors.New("cache slot locked")
	// ErrGenerator 表示内容生成器本身失败，缓存状态保持不变。
	ErrGenerator = errors.New("content generator failed")
)

// OpError 记录失败的操作、相关路径与错误类别，Kind 为上面的哨兵错误之一。
type OpError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
}

// Unwrap 同时暴露类别与底层错误，errors.Is 对两者都成立。
func (e *OpError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func ioError(op, path string, err error) error {
	return &OpError{Op: op, Path: path, Kind: ErrIO, Err: err}
}

func generatorError(err error) error {
	return &OpError{Op: "generate", Kind: ErrGenerator, Err: err}
}
