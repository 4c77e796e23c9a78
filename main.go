package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/any-hub/pagecache/internal/cache"
	"github.com/any-hub/pagecache/internal/config"
	"github.com/any-hub/pagecache/internal/logging"
	"github.com/any-hub/pagecache/internal/metrics"
	"github.com/any-hub/pagecache/internal/proxy"
	"github.com/any-hub/pagecache/internal/render"
	"github.com/any-hub/pagecache/internal/server"
	"github.com/any-hub/pagecache/internal/server/routes"
	"github.com/any-hub/pagecache/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath     string
	configExplicit bool
	checkOnly      bool
	showVersion    bool
	command        string
	args           []string
	// execArgs 为 process 命令 "--" 之后的生成器命令行。
	execArgs []string
	key      string
	ttl      int
	ttlSet   bool
	flags    *pflag.FlagSet
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.LoadWith(config.LoadOptions{
		Path:         opts.configPath,
		AllowMissing: !opts.configExplicit && opts.command != "serve" && !opts.checkOnly,
		Flags:        opts.flags,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	// serve 之外的命令 stdout 承载页面或清单，日志改写到 stderr
	console := stdErr
	if opts.command == "serve" || opts.checkOnly {
		console = stdOut
	}
	logger, err := logging.InitLoggerWithConsole(cfg.Global, console)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		for k, v := range logging.CacheFields(cfg.Global.CacheRoot, cfg.Global.CacheSize) {
			fields[k] = v
		}
		fields["rules"] = len(cfg.Rules)
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch opts.command {
	case "serve":
		return runServe(cfg, opts, logger)
	case "process":
		return runProcess(ctx, cfg, opts, logger)
	case "ls":
		return cache.List(cfg.Global.CacheRoot, stdOut)
	case "hash":
		return runHash(opts)
	case "warm":
		return runWarm(ctx, cfg, opts, logger)
	default:
		fmt.Fprintf(stdErr, "未知命令: %s\n", opts.command)
		return 2
	}
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
// 第一个位置参数为子命令（默认 serve），process 命令在 "--" 之后给出生成器命令行。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := pflag.NewFlagSet("pagecache", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		key        string
		ttl        int
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 PAGECACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&key, "key", "", "process: 页面 key")
	fs.IntVar(&ttl, "ttl", 0, "process: 有效期（秒），<= 0 永不过期；默认按 Rule 计算")
	fs.String("root", "", "缓存根目录，覆盖 CacheRoot")
	fs.Int("size", 0, "最大 Slot 数，覆盖 CacheSize；0 关闭缓存")
	fs.String("origin", "", "源站地址，覆盖 Origin")
	fs.Int("listen", 0, "监听端口，覆盖 ListenPort")
	fs.String("log-level", "", "日志级别，覆盖 LogLevel")
	fs.String("lock-timeout", "", "遗弃锁回收时间，覆盖 LockTimeout")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	positional := fs.Args()
	var execArgs []string
	if dash := fs.ArgsLenAtDash(); dash >= 0 {
		execArgs = positional[dash:]
		positional = positional[:dash]
	}

	command := "serve"
	if len(positional) > 0 {
		command = positional[0]
		positional = positional[1:]
	}
	if len(execArgs) > 0 && command != "process" {
		return cliOptions{}, fmt.Errorf("只有 process 命令接受 -- 之后的参数")
	}

	path := os.Getenv("PAGECACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	explicit := path != ""
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:     path,
		configExplicit: explicit,
		checkOnly:      checkOnly,
		showVersion:    showVer,
		command:        command,
		args:           positional,
		execArgs:       execArgs,
		key:            key,
		ttl:            ttl,
		ttlSet:         fs.Changed("ttl"),
		flags:          fs,
	}, nil
}

func newCache(cfg *config.Config, logger *logrus.Logger, m cache.Metrics) (*cache.Cache, error) {
	return cache.New(cache.Options{
		Root:        cfg.Global.CacheRoot,
		Size:        cfg.Global.CacheSize,
		LockTimeout: cfg.Global.LockTimeout.DurationValue(),
		Logger:      logger,
		Metrics:     m,
	})
}

func newOrigin(cfg *config.Config) (*render.Origin, error) {
	if err := cfg.RequireOrigin(); err != nil {
		return nil, err
	}
	return render.NewOrigin(server.NewUpstreamClient(cfg), cfg.Global.Origin)
}

func runServe(cfg *config.Config, opts cliOptions, logger *logrus.Logger) int {
	origin, err := newOrigin(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化源站失败: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → 指标 → 磁盘缓存 → Fiber server，所有请求共享同一缓存实例
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pageCache, err := newCache(cfg, logger, metrics.New(reg, "pagecache", "cache", nil))
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	for k, v := range logging.CacheFields(pageCache.Root(), pageCache.Size()) {
		fields[k] = v
	}
	fields["listen_port"] = cfg.Global.ListenPort
	fields["origin"] = origin.Base().String()
	fields["rules"] = len(cfg.Rules)
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	handler := proxy.NewHandler(pageCache, origin, cfg.TTLFor, logger)
	if err := startHTTPServer(cfg, pageCache, handler, reg, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

func startHTTPServer(cfg *config.Config, pageCache *cache.Cache, pages server.PageHandler, reg *prometheus.Registry, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Pages:      pages,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterCacheRoutes(app, pageCache, reg)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}

// runProcess 是一次请求一个进程的入口：内容由 -- 之后的命令生成，
// 未给出命令时回源抓取。
func runProcess(ctx context.Context, cfg *config.Config, opts cliOptions, logger *logrus.Logger) int {
	if opts.key == "" {
		fmt.Fprintln(stdErr, "process 需要 --key")
		return 2
	}

	var gen cache.Generator
	if len(opts.execArgs) > 0 {
		gen = render.Command{Name: opts.execArgs[0], Args: opts.execArgs[1:], Key: opts.key}
	} else {
		origin, err := newOrigin(cfg)
		if err != nil {
			fmt.Fprintf(stdErr, "process 需要生成命令或源站: %v\n", err)
			return 2
		}
		gen = origin.Page(opts.key, nil)
	}

	ttl := cfg.TTLFor(opts.key)
	if opts.ttlSet {
		ttl = secondsToDuration(opts.ttl)
	}

	pageCache, err := newCache(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}
	if err := pageCache.Process(ctx, stdOut, opts.key, ttl, gen); err != nil {
		pageCache.Logf("cache process %q failed: %v", opts.key, err)
		return 1
	}
	return 0
}

func runHash(opts cliOptions) int {
	if len(opts.args) != 1 {
		fmt.Fprintln(stdErr, "用法: pagecache hash KEY")
		return 2
	}
	key := opts.args[0]
	fmt.Fprintf(stdOut, "%d %s\n", cache.Hash(key), cache.SlotID(key))
	return 0
}

func runWarm(ctx context.Context, cfg *config.Config, opts cliOptions, logger *logrus.Logger) int {
	if len(opts.args) != 1 {
		fmt.Fprintln(stdErr, "用法: pagecache warm FILE")
		return 2
	}
	origin, err := newOrigin(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化源站失败: %v\n", err)
		return 1
	}
	pageCache, err := newCache(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存目录失败: %v\n", err)
		return 1
	}

	f, err := os.Open(opts.args[0])
	if err != nil {
		fmt.Fprintf(stdErr, "读取预热清单失败: %v\n", err)
		return 1
	}
	uris, err := proxy.ReadWarmList(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(stdErr, "%v\n", err)
		return 1
	}

	res, err := proxy.Warm(ctx, pageCache, origin, cfg.TTLFor, uris, cfg.Global.WarmConcurrency, logger)
	fields := logging.CacheFields(pageCache.Root(), pageCache.Size())
	fields["action"] = "warm"
	fields["total"] = res.Total
	fields["failed"] = res.Failed
	logger.WithFields(fields).Info("预热完成")
	if err != nil || res.Failed > 0 {
		return 1
	}
	return 0
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
