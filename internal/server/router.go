package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PageHandler describes the component that answers page requests through the
// disk cache. It allows injecting fake handlers during tests.
type PageHandler interface {
	Handle(fiber.Ctx) error
}

// PageHandlerFunc adapts a function to the PageHandler interface.
type PageHandlerFunc func(fiber.Ctx) error

// Handle makes PageHandlerFunc satisfy PageHandler.
func (f PageHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Pages      PageHandler
	ListenPort int
}

const contextKeyRequestID = "_pagecache_request_id"

// DiagnosticsPrefix 下的路径由 routes 包注册，不进入页面缓存。
const DiagnosticsPrefix = "/-/"

// NewApp builds a Fiber application with request-id middleware, panic
// recovery and a catch-all page route. Diagnostics routes registered after
// NewApp returns are reached through c.Next().
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Pages == nil {
		return nil, errors.New("page handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return opts.Pages.Handle(c)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}
