package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/pagecache/internal/cache"
	"github.com/any-hub/pagecache/internal/logging"
	"github.com/any-hub/pagecache/internal/render"
	"github.com/any-hub/pagecache/internal/server"
)

// TTLFunc 返回某个页面路径的有效期，<= 0 表示永不过期。
type TTLFunc func(path string) time.Duration

// Handler 负责 orchestrate “计算 key → 缓存引擎 → 回源生成 → 回放响应” 的全流程，
// 对外暴露 Fiber handler，内部复用共享的 Origin 与磁盘缓存。
type Handler struct {
	cache  *cache.Cache
	origin *render.Origin
	ttl    TTLFunc
	logger *logrus.Logger
}

// NewHandler constructs a page handler with shared cache/origin/logger.
func NewHandler(c *cache.Cache, origin *render.Origin, ttl TTLFunc, logger *logrus.Logger) *Handler {
	if ttl == nil {
		ttl = func(string) time.Duration { return 0 }
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		cache:  c,
		origin: origin,
		ttl:    ttl,
		logger: logger,
	}
}

// 缓存之外的结果；缓存分支的取值来自 cache.Outcome。
const (
	outcomeBypass = "bypass"
	outcomeFailed = "failed"
)

// PageKey 由规范化路径与排序后的查询串组成；同一页面不同参数顺序命中同一 Slot。
func PageKey(rawPath, rawQuery string) string {
	clean := cleanPath(rawPath)
	if rawQuery == "" {
		return clean
	}
	if values, err := url.ParseQuery(rawQuery); err == nil {
		if encoded := values.Encode(); encoded != "" {
			return clean + "?" + encoded
		}
		return clean
	}
	return clean + "?" + rawQuery
}

func cleanPath(raw string) string {
	if raw == "" {
		raw = "/"
	}
	return path.Clean("/" + raw)
}

// Handle 执行缓存查找与生成，GET/HEAD 之外的方法直接透传到源站。
func (h *Handler) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	method := c.Method()
	uri := c.Request().URI()
	rawPath := string(uri.Path())
	rawQuery := string(uri.QueryString())

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if method != http.MethodGet && method != http.MethodHead {
		return h.passThrough(c, ctx, requestID, started)
	}

	key := PageKey(rawPath, rawQuery)
	slot := cache.SlotID(key)
	ttl := h.ttl(cleanPath(rawPath))

	page := h.origin.Page(key, originHeaders(c, requestID))

	var buf bytes.Buffer
	result, err := h.cache.Render(ctx, &buf, key, ttl, page)
	outcome := result.String()

	if errors.Is(err, cache.ErrIO) {
		// 缓存目录不可用时退化为直接回源，请求本身不失败
		h.logger.WithError(err).WithFields(h.fields(method, key, slot, outcomeBypass, requestID)).
			Warn("cache_unavailable")
		buf.Reset()
		outcome = outcomeBypass
		err = page.Generate(ctx, &buf)
	}
	if err != nil {
		h.logResult(method, key, slot, outcomeFailed, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_failed")
	}

	cached, err := render.ReadPage(&buf)
	if err != nil {
		h.logResult(method, key, slot, outcomeFailed, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "page_unreadable")
	}

	copyResponseHeaders(c, cached.Header)
	c.Set("X-Pagecache-Slot", slot)
	c.Set("X-Pagecache-Status", outcome)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(cached.Status)
	h.logResult(method, key, slot, outcome, requestID, cached.Status, started, nil)

	if method == http.MethodHead {
		c.Response().Header.SetContentLength(len(cached.Body))
		c.Response().SkipBody = true
		return nil
	}
	return c.Send(cached.Body)
}

// passThrough 将非幂等请求原样转发到源站，不经过缓存。
func (h *Handler) passThrough(c fiber.Ctx, ctx context.Context, requestID string, started time.Time) error {
	method := c.Method()
	target := string(c.Request().URI().RequestURI())

	header := fiberHeadersAsHTTP(c)
	header.Set("X-Forwarded-Host", c.Hostname())
	if requestID != "" {
		header.Set("X-Request-ID", requestID)
	}

	resp, err := h.origin.Do(ctx, method, target, header, bytesReader(c.Body()))
	if err != nil {
		h.logResult(method, target, "", outcomeFailed, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "origin_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-Pagecache-Status", outcomeBypass)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	h.logResult(method, target, "", outcomeBypass, requestID, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("proxy stream failed: %v", err))
	}
	return nil
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) fields(method, key, slot, outcome, requestID string) logrus.Fields {
	fields := logging.RequestFields(method, key, slot, outcome)
	fields["action"] = "page"
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func (h *Handler) logResult(
	method string,
	key string,
	slot string,
	outcome string,
	requestID string,
	status int,
	started time.Time,
	err error,
) {
	fields := h.fields(method, key, slot, outcome, requestID)
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("page_failed")
		return
	}
	h.logger.WithFields(fields).Info("page_complete")
}

// originHeaders 只携带不影响页面内容的转发头，缓存内容对所有访客一致。
func originHeaders(c fiber.Ctx, requestID string) http.Header {
	header := http.Header{}
	header.Set("X-Forwarded-Host", c.Hostname())
	header.Set("X-Forwarded-Proto", c.Protocol())
	if requestID != "" {
		header.Set("X-Request-ID", requestID)
	}
	return header
}

func bytesReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(b)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || key == "Content-Length" {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
