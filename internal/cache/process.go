package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"
)

// Generator 把一个页面的完整内容写入 w。返回错误时缓存保持原状。
type Generator interface {
	Generate(ctx context.Context, w io.Writer) error
}

// GeneratorFunc 让普通函数满足 Generator。
type GeneratorFunc func(ctx context.Context, w io.Writer) error

// Generate 调用 f 本身。
func (f GeneratorFunc) Generate(ctx context.Context, w io.Writer) error {
	return f(ctx, w)
}

// Outcome 描述一次 Render 走过的分支。
type Outcome int

const (
	// OutcomeBypass 缓存关闭，生成器直接输出。
	OutcomeBypass Outcome = iota
	// OutcomeHit 输出了新鲜的 Slot。
	OutcomeHit
	// OutcomeMiss 重新生成并发布了 Slot。
	OutcomeMiss
	// OutcomeStale 生成权被占用，输出了过期内容。
	OutcomeStale
	// OutcomeDirect 生成权被占用且没有旧内容，生成结果未写入缓存。
	OutcomeDirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeMiss:
		return "miss"
	case OutcomeStale:
		return "stale"
	case OutcomeDirect:
		return "direct"
	default:
		return "bypass"
	}
}

// Process 将 key 对应的页面写入 out，必要时调用 gen 重新生成：
//
//   - Slot 新鲜：直接输出，不加锁、不调用生成器。
//   - 缺失或过期且拿到锁：生成到根目录下的临时文件，rename 覆盖 Slot，
//     执行淘汰后输出新内容。生成失败时丢弃临时文件，旧 Slot 不变。
//   - 锁被占用：有旧内容就原样输出；没有则直接生成到 out，不写缓存。
//
// ttl <= 0 表示永不过期。缓存关闭（Size <= 0）时生成器直接输出到 out。
func (c *Cache) Process(ctx context.Context, out io.Writer, key string, ttl time.Duration, gen Generator) error {
	_, err := c.Render(ctx, out, key, ttl, gen)
	return err
}

// Render 与 Process 相同，同时返回实际走过的分支。
func (c *Cache) Render(ctx context.Context, out io.Writer, key string, ttl time.Duration, gen Generator) (Outcome, error) {
	if gen == nil {
		return OutcomeBypass, errors.New("generator required")
	}
	if !c.Enabled() {
		return OutcomeBypass, c.generateDirect(ctx, out, gen)
	}

	p := c.Paths(key)
	fields := c.fields(p, key)

	state, err := inspectSlot(p.Content, ttl, c.now())
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("cache_stat_failed")
	}
	if state == slotFresh {
		err := c.serve(p.Content, out)
		if err == nil {
			c.metrics.Hit()
			return OutcomeHit, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return OutcomeHit, err
		}
		// 在 stat 与 open 之间被淘汰
		state = slotAbsent
	}

	release, ok := c.claim(p.ID)
	if !ok {
		c.countLookup(state)
		return c.busy(ctx, out, p, gen, fields)
	}
	defer release()

	lock, err := c.tryAcquire(p.Lock)
	if errors.Is(err, ErrLockBusy) {
		c.countLookup(state)
		return c.busy(ctx, out, p, gen, fields)
	}
	if err != nil {
		c.countLookup(state)
		return OutcomeMiss, err
	}
	defer lock.Release()

	// 等锁期间其他进程可能已经发布了新版本
	if again, _ := inspectSlot(p.Content, ttl, c.now()); again == slotFresh {
		err := c.serve(p.Content, out)
		if err == nil {
			c.metrics.Hit()
			return OutcomeHit, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return OutcomeHit, err
		}
	}
	c.countLookup(state)

	f, err := c.publish(ctx, p, gen)
	if err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("cache_fill_failed")
		return OutcomeMiss, err
	}
	defer f.Close()
	c.metrics.Generated()
	c.logger.WithFields(fields).WithField("previous", state.String()).Debug("cache_fill_complete")

	// 淘汰可能删除刚发布的 Slot（其他进程的 sweep），输出走已打开的句柄
	if _, err := c.sweep(p.ID); err != nil {
		c.logger.WithError(err).WithFields(fields).Warn("cache_sweep_failed")
	}
	if _, err := io.Copy(out, f); err != nil {
		return OutcomeMiss, ioError("copy", p.Content, err)
	}
	return OutcomeMiss, nil
}

func (c *Cache) countLookup(state slotState) {
	if state == slotStale {
		c.metrics.Stale()
	} else {
		c.metrics.Miss()
	}
}

// busy 处理生成权被他人持有的情况，从不等待。
func (c *Cache) busy(ctx context.Context, out io.Writer, p Paths, gen Generator, fields logrus.Fields) (Outcome, error) {
	c.metrics.Busy()
	err := c.serve(p.Content, out)
	if err == nil {
		c.logger.WithFields(fields).Debug("cache_busy_serve_stale")
		return OutcomeStale, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return OutcomeStale, err
	}
	c.logger.WithFields(fields).Debug("cache_busy_generate_direct")
	return OutcomeDirect, c.generateDirect(ctx, out, gen)
}

func (c *Cache) generateDirect(ctx context.Context, out io.Writer, gen Generator) error {
	if err := gen.Generate(ctx, out); err != nil {
		c.metrics.GeneratorFailed()
		return generatorError(err)
	}
	return nil
}

// publish 把生成器输出写入根目录下的临时文件 <id><digits>，以引擎时钟标记 mtime 后
// rename 到 Slot。返回的句柄定位在文件开头，即使 Slot 随后被删除也仍可读取。
func (c *Cache) publish(ctx context.Context, p Paths, gen Generator) (*os.File, error) {
	tmp, err := os.CreateTemp(c.root, p.ID)
	if err != nil {
		return nil, ioError("create temp", c.root, err)
	}
	name := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			tmp.Close()
			_ = os.Remove(name)
		}
	}()

	sink := &fileSink{f: tmp}
	genErr := runGenerator(ctx, gen, sink)
	if sink.err != nil {
		return nil, ioError("write", name, sink.err)
	}
	if genErr != nil {
		c.metrics.GeneratorFailed()
		return nil, generatorError(genErr)
	}
	if err := tmp.Sync(); err != nil {
		return nil, ioError("sync", name, err)
	}

	now := c.now()
	if err := os.Chtimes(name, now, now); err != nil {
		c.logger.WithError(err).WithField("slot", p.ID).Warn("cache_chtimes_failed")
	}
	if err := atomic.ReplaceFile(name, p.Content); err != nil {
		return nil, ioError("publish", p.Content, err)
	}
	keep = true

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, ioError("seek", p.Content, err)
	}
	return tmp, nil
}

// fileSink 记录临时文件的写入错误，以便区分生成器错误与缓存目录 I/O 错误。
type fileSink struct {
	f   *os.File
	err error
}

func (s *fileSink) Write(b []byte) (int, error) {
	n, err := s.f.Write(b)
	if err != nil && s.err == nil {
		s.err = err
	}
	return n, err
}

func runGenerator(ctx context.Context, gen Generator, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	return gen.Generate(ctx, w)
}

// serve 将 Slot 内容复制到 out。Slot 不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)。
func (c *Cache) serve(path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return ioError("open", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(out, f); err != nil {
		return ioError("copy", path, err)
	}
	return nil
}

// Process 是面向单次进程调用的入口：按 size/root 构建缓存并处理 key，
// 成功返回 0，否则返回 1。ttl 单位为秒。
func Process(ctx context.Context, out io.Writer, size int, root, key string, ttl int, gen Generator) int {
	c, err := New(Options{Root: root, Size: size})
	if err != nil {
		Log("cache init failed: %v", err)
		return 1
	}
	if err := c.Process(ctx, out, key, time.Duration(ttl)*time.Second, gen); err != nil {
		c.Logf("cache process %q failed: %v", key, err)
		return 1
	}
	return 0
}
