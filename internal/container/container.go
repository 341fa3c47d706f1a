package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/config"
	"treasury-terminal/execution"
	"treasury-terminal/gateway"
	"treasury-terminal/infrastructure/alert"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/instrument"
	"treasury-terminal/internal/engine"
	"treasury-terminal/market"
	"treasury-terminal/router"
	"treasury-terminal/session"
)

// Options 命令行层面的覆盖项
type Options struct {
	ConfigPath    string
	FIXConfigPath string // quickfix 会话配置文件，给出时忽略 fix 段的连接参数
	BrokerAddr    string // --redis-host
	NoMarketData  bool
	Verbose       bool

	// 测试注入
	Broker broker.Broker
	Logger *logger.Logger
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  config.AppConfig
	opts Options

	// fixSettings 来自 --fix-config；为 nil 时由 fix 段生成
	fixSettings *quickfix.Settings

	// 基础设施
	logger     *logger.Logger
	monitor    *monitor.Monitor
	broker     broker.Broker
	ownsBroker bool
	alertMgr   *alert.Manager
	registry   *instrument.Registry

	// 核心服务
	session   *session.Session
	engine    *engine.TradingEngine
	initiator *gateway.Initiator
	router    *router.Router
	simulator *market.Simulator
	quotes    *market.Service
	feed      *market.Feed

	// HTTP服务器
	httpServer   *httpServerComponent
	streamServer *httpServerComponent

	// 生命周期管理
	lifecycle *LifecycleManager
}

// New 加载配置并应用命令行覆盖
func New(opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewWithConfig(cfg, opts)
	if opts.FIXConfigPath != "" {
		c.fixSettings, err = gateway.LoadSettings(opts.FIXConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load fix config failed: %w", err)
		}
	}
	return c, nil
}

// NewWithConfig 使用已加载的配置
func NewWithConfig(cfg config.AppConfig, opts Options) *Container {
	if opts.BrokerAddr != "" {
		cfg.Broker.Addr = opts.BrokerAddr
	}
	if opts.NoMarketData {
		cfg.MarketData.Enabled = false
	}
	if opts.Verbose {
		cfg.Router.Verbose = true
		cfg.Log.Level = "debug"
	}
	return &Container{
		cfg:       cfg,
		opts:      opts,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件；底座不可达时返回错误
func (c *Container) Build(ctx context.Context) error {
	if err := c.buildInfrastructure(ctx); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.registerLifecycleComponents()
	c.logger.Info("container built successfully", zap.Strings("components", c.lifecycle.Names()))
	return nil
}

func (c *Container) buildInfrastructure(ctx context.Context) error {
	var err error
	c.logger = c.opts.Logger
	if c.logger == nil {
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}

	monitorCfg := monitor.DefaultConfig()
	if c.cfg.Metrics.Namespace != "" {
		monitorCfg.Namespace = c.cfg.Metrics.Namespace
	}
	c.monitor = monitor.New(monitorCfg)

	c.broker = c.opts.Broker
	if c.broker == nil {
		r, err := broker.DialRedis(ctx, broker.RedisOptions{
			Addr:        c.cfg.Broker.Addr,
			Password:    c.cfg.Broker.Password,
			DB:          c.cfg.Broker.DB,
			DialTimeout: time.Duration(c.cfg.Broker.DialTimeoutMs) * time.Millisecond,
		})
		if err != nil {
			return err
		}
		c.broker = r
		c.ownsBroker = true
	}

	c.alertMgr = alert.NewFromConfig(c.cfg.Alert, c.logger, c.broker)

	c.logger.Info("infrastructure built",
		zap.String("env", c.cfg.Env),
		zap.String("broker", c.cfg.Broker.Addr),
		zap.Strings("alertChannels", c.alertMgr.Channels()))
	return nil
}

func (c *Container) buildCoreServices() error {
	conventions, err := c.cfg.MarketData.ParsedConventions()
	if err != nil {
		return err
	}
	c.registry, err = instrument.Default().WithConventions(conventions)
	if err != nil {
		return err
	}

	c.session = session.New(c.logger)
	c.session.OnChange(session.StatusPublisher(c.broker, c.logger))
	c.session.OnChange(session.StateGauge(c.monitor.UpdateSessionState))

	openMode, err := market.ParseOpenMode(c.cfg.MarketData.SessionOpen)
	if err != nil {
		return err
	}
	simOpts := market.DefaultOptions()
	simOpts.Interval = c.cfg.MarketData.Interval()
	simOpts.SessionOpen = openMode
	simOpts.SeedAverage = c.cfg.MarketData.SeedAverage
	if seed := c.cfg.MarketData.Seed; seed != 0 {
		simOpts.Rand = market.NewRand(seed)
	}
	if len(c.cfg.MarketData.Overrides) > 0 {
		simOpts.Overrides = make(map[string]market.Params, len(c.cfg.MarketData.Overrides))
		for id, p := range c.cfg.MarketData.Overrides {
			if !c.registry.Has(id) {
				return fmt.Errorf("market data override for unknown instrument %s", id)
			}
			simOpts.Overrides[id] = market.Params{WalkStep: p.WalkStep, HalfSpread: p.HalfSpread}
		}
	}
	c.simulator = market.NewSimulator(c.registry, c.broker, simOpts, c.logger, c.monitor)

	c.engine, err = engine.New(engine.Config{MarketData: c.cfg.MarketData.Enabled}, engine.Components{
		Session:      c.session,
		Ingestor:     execution.NewIngestor(c.broker, c.logger, c.monitor),
		Simulator:    c.simulator,
		AlertManager: c.alertMgr,
		Logger:       c.logger,
	})
	if err != nil {
		return err
	}

	routerCfg := router.Config{
		PollTimeout: c.cfg.Router.PollTimeout(),
		Verbose:     c.cfg.Router.Verbose,
	}
	// 未配置对端时 sender 与网关都必须是无类型 nil，路由据此进入模拟模式
	settings, err := c.sessionSettings()
	if err != nil {
		return err
	}
	if settings != nil {
		c.initiator, err = gateway.NewInitiator(settings, c.engine, gateway.Options{
			MaxMsgsPerSec: c.cfg.FIX.MaxMsgsPerSec,
			Burst:         c.cfg.FIX.Burst,
		}, c.logger)
		if err != nil {
			return err
		}
		c.router = router.New(routerCfg, c.broker, c.registry, c.session, c.initiator, c.logger, c.monitor)
		c.engine.Attach(c.router, c.initiator)
	} else {
		c.router = router.New(routerCfg, c.broker, c.registry, c.session, nil, c.logger, c.monitor)
		c.engine.Attach(c.router, nil)
	}
	if c.alertMgr != nil {
		c.router.SetAlerter(c.alertMgr)
	}

	c.quotes = market.NewService(market.NewPublisher())
	c.feed = market.NewFeed(c.broker, c.quotes, c.logger)

	c.logger.Info("core services built",
		zap.Int("instruments", c.registry.Len()),
		zap.Bool("fix", c.initiator != nil),
		zap.Bool("marketData", c.cfg.MarketData.Enabled))
	return nil
}

// sessionSettings 优先使用 --fix-config，其次是 fix 段；都没有时返回 nil
func (c *Container) sessionSettings() (*quickfix.Settings, error) {
	if c.fixSettings != nil {
		return c.fixSettings, nil
	}
	s := c.cfg.FIX
	if !s.Enabled() {
		return nil, nil
	}
	return gateway.Settings(gateway.Config{
		Host:              s.Host,
		Port:              s.Port,
		SenderCompID:      s.SenderCompID,
		TargetCompID:      s.TargetCompID,
		HeartBtInt:        time.Duration(s.HeartBtInt) * time.Second,
		Username:          s.Username,
		Password:          s.Password,
		ReconnectInterval: time.Duration(s.ReconnectIntervalSec) * time.Second,
		LogoutTimeout:     time.Duration(s.LogoutTimeoutSec) * time.Second,
	})
}

func (c *Container) registerLifecycleComponents() {
	stream := market.NewStreamHandler(c.quotes, c.registry, c.logger, c.monitor)

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.monitor.Handler())
	mux.HandleFunc("/healthz", c.serveHealth)
	separateStream := c.cfg.Stream.Addr != "" && c.cfg.Stream.Addr != c.cfg.Metrics.Addr
	if !separateStream {
		mux.Handle("/stream", stream)
	}

	if c.cfg.Metrics.Addr != "" {
		c.httpServer = &httpServerComponent{
			name:    "metrics_server",
			handler: mux,
			addr:    c.cfg.Metrics.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register("metrics_server", c.httpServer)
	}
	if separateStream {
		streamMux := http.NewServeMux()
		streamMux.Handle("/stream", stream)
		c.streamServer = &httpServerComponent{
			name:    "stream_server",
			handler: streamMux,
			addr:    c.cfg.Stream.Addr,
			logger:  c.logger,
		}
		c.lifecycle.Register("stream_server", c.streamServer)
	}

	c.lifecycle.Register("quote_feed", &runnerComponent{
		name:   "quote feed",
		logger: c.logger,
		run: func(ctx context.Context) error {
			if err := c.feed.Prime(ctx); err != nil {
				c.logger.Warn("quote snapshot unavailable", zap.Error(err))
			}
			return c.feed.Run(ctx)
		},
	})

	if c.opts.ConfigPath != "" {
		reloader := config.NewReloader(c.opts.ConfigPath, config.DefaultReloadConfig(), c.logger)
		reloader.OnReload(c.applyReload)
		c.lifecycle.Register("config_reloader", &runnerComponent{
			name:   "config reloader",
			logger: c.logger,
			run:    reloader.Run,
		})
	}

	c.lifecycle.Register("trading_engine", c.engine)
}

// applyReload 只更新日志级别与路由详细输出；--verbose 启动时保持开启
func (c *Container) applyReload(cfg config.AppConfig) {
	level := cfg.Log.Level
	verbose := cfg.Router.Verbose
	if c.opts.Verbose {
		level = "debug"
		verbose = true
	}
	if err := c.logger.SetLevel(level); err != nil {
		c.logger.Warn("log level not applied", zap.String("level", level), zap.Error(err))
	}
	c.router.SetVerbose(verbose)
}

func (c *Container) serveHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.HealthCheck(); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

// Stop 逆序停止：先停引擎（网关登出），最后关闭底座连接
func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if c.ownsBroker && c.broker != nil {
		if cerr := c.broker.Close(); cerr != nil {
			c.logger.LogError(cerr, map[string]interface{}{"action": "close_broker"})
		}
	}

	if c.opts.Logger == nil {
		_ = c.logger.Close()
	}
	return err
}

func (c *Container) HealthCheck() error {
	if err := c.lifecycle.CheckHealth(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return c.broker.Ping(ctx)
}

func (c *Container) Config() config.AppConfig       { return c.cfg }
func (c *Container) Logger() *logger.Logger         { return c.logger }
func (c *Container) Monitor() *monitor.Monitor      { return c.monitor }
func (c *Container) Broker() broker.Broker          { return c.broker }
func (c *Container) Registry() *instrument.Registry { return c.registry }
func (c *Container) Session() *session.Session      { return c.session }
func (c *Container) Engine() *engine.TradingEngine  { return c.engine }
func (c *Container) Router() *router.Router         { return c.router }
func (c *Container) Quotes() *market.Service        { return c.quotes }

// HTTPAddr 指标/健康检查服务的实际地址，未启用时为空
func (c *Container) HTTPAddr() string {
	if c.httpServer == nil {
		return ""
	}
	return c.httpServer.Addr()
}
