package proxy

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/any-hub/pagecache/internal/cache"
	"github.com/any-hub/pagecache/internal/render"
)

// WarmResult 汇总一次预热。
type WarmResult struct {
	Total  int
	Failed int
}

// ReadWarmList 读取每行一个请求 URI 的清单，忽略空行与 # 注释。
func ReadWarmList(r io.Reader) ([]string, error) {
	var uris []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uris = append(uris, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read warm list: %w", err)
	}
	return uris, nil
}

// Warm 以最多 limit 个并发预先生成 uris 对应的页面。单个页面失败不会中断其他页面；
// ctx 取消时尚未开始的页面被跳过。
func Warm(ctx context.Context, c *cache.Cache, origin *render.Origin, ttl TTLFunc, uris []string, limit int, logger *logrus.Logger) (WarmResult, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if limit <= 0 {
		limit = 1
	}

	var failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for _, raw := range uris {
		if err := ctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := warmOne(ctx, c, origin, ttl, raw); err != nil {
				failed.Add(1)
				logger.WithError(err).WithFields(logrus.Fields{"action": "warm", "uri": raw}).Warn("warm_failed")
				return nil
			}
			logger.WithFields(logrus.Fields{"action": "warm", "uri": raw}).Debug("warm_complete")
			return nil
		})
	}
	_ = g.Wait()

	result := WarmResult{Total: len(uris), Failed: int(failed.Load())}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func warmOne(ctx context.Context, c *cache.Cache, origin *render.Origin, ttl TTLFunc, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse uri: %w", err)
	}
	key := PageKey(parsed.Path, parsed.RawQuery)
	if ttl == nil {
		ttl = func(string) time.Duration { return 0 }
	}
	return c.Process(ctx, io.Discard, key, ttl(cleanPath(parsed.Path)), origin.Page(key, nil))
}
