package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"treasury-terminal/infrastructure/logger"
)

// ReloadConfig 热更新配置
type ReloadConfig struct {
	Cooldown     time.Duration // 冷却时间，合并编辑器的连续写入
	PollInterval time.Duration // fsnotify 不可用时的轮询间隔
}

// DefaultReloadConfig 默认热更新配置
func DefaultReloadConfig() ReloadConfig {
	return ReloadConfig{
		Cooldown:     time.Second,
		PollInterval: 2 * time.Second,
	}
}

// Reloader 监听配置文件变化并把新配置交给已注册的处理函数。
// 只有日志级别与路由详细输出支持热更新，品种与报价惯例启动后不变。
type Reloader struct {
	path string
	cfg  ReloadConfig
	log  *logger.Logger
	now  func() time.Time

	mu         sync.Mutex
	handlers   []func(AppConfig)
	lastReload time.Time
}

// NewReloader 创建热更新器
func NewReloader(path string, cfg ReloadConfig, log *logger.Logger) *Reloader {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultReloadConfig().PollInterval
	}
	return &Reloader{
		path: path,
		cfg:  cfg,
		log:  log.Named("config"),
		now:  time.Now,
	}
}

// OnReload 注册处理函数
func (r *Reloader) OnReload(fn func(AppConfig)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Run 阻塞监听直到 ctx 结束。优先 fsnotify，创建失败时退回轮询。
func (r *Reloader) Run(ctx context.Context) error {
	if r.path == "" {
		return errors.New("reloader: config path is empty")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.Warn("fsnotify unavailable, polling config file", zap.Error(err))
		return r.poll(ctx)
	}
	defer watcher.Close()

	// 监听目录：编辑器常以 rename 方式保存，直接监听文件会丢失后续事件
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config dir: %w", err)
	}
	name := filepath.Clean(r.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.log.Warn("config reload rejected", zap.String("path", r.path), zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.log.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (r *Reloader) poll(ctx context.Context) error {
	w := Watcher{
		Path:     r.path,
		Interval: r.cfg.PollInterval,
		OnError: func(err error) {
			r.log.Warn("config reload rejected", zap.String("path", r.path), zap.Error(err))
		},
	}
	if err := w.Start(ctx, r.apply); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Reload 读取并校验配置文件；冷却期内的重复事件被忽略。
func (r *Reloader) Reload() error {
	r.mu.Lock()
	if !r.lastReload.IsZero() && r.now().Sub(r.lastReload) < r.cfg.Cooldown {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(r.path)
	if err != nil {
		return err
	}
	r.apply(cfg)
	return nil
}

func (r *Reloader) apply(cfg AppConfig) {
	r.mu.Lock()
	r.lastReload = r.now()
	handlers := append([]func(AppConfig){}, r.handlers...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(cfg)
	}
	r.log.Info("config reloaded",
		zap.String("path", r.path),
		zap.String("logLevel", cfg.Log.Level),
		zap.Bool("verbose", cfg.Router.Verbose))
}

// LastReload 获取最后重载时间
func (r *Reloader) LastReload() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastReload
}
