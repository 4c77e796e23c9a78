package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// maxStderr 限制失败信息中保留的 stderr 字节数。
const maxStderr = 4 << 10

// Command 执行外部程序并把 stdout 作为页面内容，
// 程序通过环境变量 PAGECACHE_KEY 获知当前 key。
type Command struct {
	Name string
	Args []string
	Dir  string
	Key  string
	Env  []string
}

// Generate 实现 cache.Generator；非零退出码视为生成失败。
func (c Command) Generate(ctx context.Context, w io.Writer) error {
	if c.Name == "" {
		return fmt.Errorf("command required")
	}
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Env = append(cmd.Env, "PAGECACHE_KEY="+c.Key)
	cmd.Stdout = w
	stderr := &limitedBuffer{max: maxStderr}
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Name, err, msg)
		}
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.max - b.Len(); room < len(p) {
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return n, nil
	}
	b.Buffer.Write(p)
	return n, nil
}
