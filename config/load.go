package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"treasury-terminal/infrastructure/alert"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/instrument"
	"treasury-terminal/market"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env        string           `yaml:"env"`
	Broker     BrokerConfig     `yaml:"broker"`
	FIX        SessionConfig    `yaml:"fix"`
	MarketData MarketDataConfig `yaml:"marketData"`
	Router     RouterConfig     `yaml:"router"`
	Stream     StreamConfig     `yaml:"stream"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Alert      alert.Config     `yaml:"alert"`
	Log        logger.Config    `yaml:"log"`
}

type BrokerConfig struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	DialTimeoutMs int    `yaml:"dialTimeoutMs"`
}

// SessionConfig FIX 发起方会话参数；为空 host 时不启动网关，订单走模拟模式。
// 命令行给出 --fix-config 时改用 quickfix 配置文件，这里只保留限速参数。
type SessionConfig struct {
	Host                 string  `yaml:"host"`
	Port                 int     `yaml:"port"`
	SenderCompID         string  `yaml:"senderCompID"`
	TargetCompID         string  `yaml:"targetCompID"`
	HeartBtInt           int     `yaml:"heartBtInt"` // 秒
	Username             string  `yaml:"username"`
	Password             string  `yaml:"password"`
	ReconnectIntervalSec int     `yaml:"reconnectIntervalSec"`
	LogoutTimeoutSec     int     `yaml:"logoutTimeoutSec"`
	MaxMsgsPerSec        float64 `yaml:"maxMsgsPerSec"`
	Burst                int     `yaml:"burst"`
}

// Enabled 是否配置了对端地址。
func (s SessionConfig) Enabled() bool {
	return s.Host != "" && s.Port > 0
}

type MarketDataConfig struct {
	Enabled     bool                  `yaml:"enabled"`
	IntervalMs  int                   `yaml:"intervalMs"`
	Seed        uint64                `yaml:"seed"` // 0 表示随机种子
	SessionOpen string                `yaml:"sessionOpen"`
	SeedAverage bool                  `yaml:"seedAverage"`
	Overrides   map[string]WalkParams `yaml:"overrides"`
	Conventions map[string]string     `yaml:"conventions"`
}

// WalkParams 单品种随机游走覆盖。
type WalkParams struct {
	WalkStep   float64 `yaml:"walkStep"`
	HalfSpread float64 `yaml:"halfSpread"`
}

type RouterConfig struct {
	PollTimeoutMs int  `yaml:"pollTimeoutMs"`
	Verbose       bool `yaml:"verbose"`
}

type StreamConfig struct {
	Addr string `yaml:"addr"` // 为空时不提供 WebSocket 推送
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// Default 本地开发默认值：本机 Redis、无 FIX 对端、行情开启。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Broker: BrokerConfig{
			Addr:          "localhost:6379",
			DialTimeoutMs: 3000,
		},
		FIX: SessionConfig{
			SenderCompID:         "CLIENT",
			TargetCompID:         "BROKER",
			HeartBtInt:           30,
			ReconnectIntervalSec: 30,
			LogoutTimeoutSec:     2,
		},
		MarketData: MarketDataConfig{
			Enabled:     true,
			IntervalMs:  1000,
			SessionOpen: "firstMid",
			SeedAverage: true,
		},
		Router: RouterConfig{PollTimeoutMs: 1000},
		Metrics: MetricsConfig{
			Addr:      ":9102",
			Namespace: "treasury",
		},
		Alert: alert.DefaultConfig(),
		Log:   logger.DefaultConfig(),
	}
}

// Load reads YAML config from path on top of Default and applies basic validation.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment fields from env vars if present.
// An empty path starts from Default.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return cfg, err
		}
	}
	ApplyEnv(&cfg)
	return cfg, Validate(cfg)
}

// ApplyEnv 环境变量覆盖。REDIS_HOST 只给主机名，端口沿用 6379。
func ApplyEnv(cfg *AppConfig) {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Broker.Addr = v + ":6379"
	}
	if v := os.Getenv("TT_REDIS_ADDR"); v != "" {
		cfg.Broker.Addr = v
	}
	if v := os.Getenv("TT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Broker.Addr == "" {
		return errors.New("broker.addr is required")
	}
	if cfg.Broker.DB < 0 {
		return errors.New("broker.db must be >= 0")
	}
	if err := validateSession(cfg.FIX); err != nil {
		return err
	}
	md := cfg.MarketData
	if md.IntervalMs < 0 {
		return errors.New("marketData.intervalMs must be >= 0")
	}
	switch md.SessionOpen {
	case "", "firstMid", "first_mid", "base":
	default:
		return fmt.Errorf("marketData.sessionOpen %q must be firstMid or base", md.SessionOpen)
	}
	for id, p := range md.Overrides {
		if p.WalkStep < 0 {
			return fmt.Errorf("marketData.overrides.%s.walkStep must be >= 0", id)
		}
		if p.HalfSpread < market.MinHalfSpread {
			return fmt.Errorf("marketData.overrides.%s.halfSpread must be >= %g", id, market.MinHalfSpread)
		}
	}
	if _, err := md.ParsedConventions(); err != nil {
		return err
	}
	if cfg.Router.PollTimeoutMs < 0 {
		return errors.New("router.pollTimeoutMs must be >= 0")
	}
	if _, err := zapcore.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.Host == "" {
		return nil
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("fix.port %d out of range", s.Port)
	}
	if s.SenderCompID == "" || s.TargetCompID == "" {
		return errors.New("fix.senderCompID/targetCompID is required")
	}
	if s.HeartBtInt < 0 || s.ReconnectIntervalSec < 0 || s.LogoutTimeoutSec < 0 {
		return errors.New("fix.heartBtInt/reconnectIntervalSec/logoutTimeoutSec must be >= 0")
	}
	if s.MaxMsgsPerSec < 0 || s.Burst < 0 {
		return errors.New("fix.maxMsgsPerSec/burst must be >= 0")
	}
	return nil
}

// ParsedConventions 把配置中的惯例名转换为枚举；品种是否存在由注册表检查。
func (m MarketDataConfig) ParsedConventions() (map[string]instrument.Convention, error) {
	out := make(map[string]instrument.Convention, len(m.Conventions))
	for id, name := range m.Conventions {
		c, err := instrument.ParseConvention(name)
		if err != nil {
			return nil, fmt.Errorf("marketData.conventions.%s: %w", id, err)
		}
		out[id] = c
	}
	return out, nil
}

// Interval 行情节奏。
func (m MarketDataConfig) Interval() time.Duration {
	if m.IntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(m.IntervalMs) * time.Millisecond
}

// PollTimeout 队列阻塞等待时间。
func (r RouterConfig) PollTimeout() time.Duration {
	return time.Duration(r.PollTimeoutMs) * time.Millisecond
}
