package gateway

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/quickfixgo/quickfix"
	qfconfig "github.com/quickfixgo/quickfix/config"
)

// 会话设置中的自定义键，quickfix 本身忽略，登录时由网关写入 553/554。
const (
	SettingUsername = "Username"
	SettingPassword = "Password"
)

// Config YAML 配置转换而来的会话参数。
type Config struct {
	Host              string
	Port              int
	SenderCompID      string
	TargetCompID      string
	HeartBtInt        time.Duration
	Username          string
	Password          string
	ReconnectInterval time.Duration
	LogoutTimeout     time.Duration
}

func seconds(d, def time.Duration) string {
	if d <= 0 {
		d = def
	}
	n := int(d / time.Second)
	if n < 1 {
		n = 1
	}
	return strconv.Itoa(n)
}

// Settings 生成单会话的发起方设置：内存存储，每次登录重置序号。
func Settings(cfg Config) (*quickfix.Settings, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("fix gateway host/port is required")
	}
	if cfg.SenderCompID == "" || cfg.TargetCompID == "" {
		return nil, errors.New("fix gateway senderCompID/targetCompID is required")
	}

	settings := quickfix.NewSettings()
	global := settings.GlobalSettings()
	global.Set(qfconfig.SocketConnectHost, cfg.Host)
	global.Set(qfconfig.SocketConnectPort, strconv.Itoa(cfg.Port))
	global.Set(qfconfig.HeartBtInt, seconds(cfg.HeartBtInt, 30*time.Second))
	global.Set(qfconfig.ReconnectInterval, seconds(cfg.ReconnectInterval, 30*time.Second))
	global.Set(qfconfig.LogoutTimeout, seconds(cfg.LogoutTimeout, 2*time.Second))
	global.Set(qfconfig.ResetOnLogon, "Y")
	global.Set(qfconfig.ResetOnLogout, "Y")
	global.Set(qfconfig.ResetOnDisconnect, "Y")

	session := quickfix.NewSessionSettings()
	session.Set(qfconfig.BeginString, quickfix.BeginStringFIX44)
	session.Set(qfconfig.SenderCompID, cfg.SenderCompID)
	session.Set(qfconfig.TargetCompID, cfg.TargetCompID)
	if cfg.Username != "" {
		session.Set(SettingUsername, cfg.Username)
		session.Set(SettingPassword, cfg.Password)
	}
	if _, err := settings.AddSession(session); err != nil {
		return nil, fmt.Errorf("add fix session: %w", err)
	}
	return settings, nil
}

// LoadSettings 读取 quickfix 格式的会话配置文件（--fix-config）。
func LoadSettings(path string) (*quickfix.Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read fix config: %w", err)
	}
	defer f.Close()
	settings, err := quickfix.ParseSettings(f)
	if err != nil {
		return nil, fmt.Errorf("parse fix config: %w", err)
	}
	if _, _, err := singleSession(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// singleSession 网关只管理一个会话。
func singleSession(settings *quickfix.Settings) (quickfix.SessionID, *quickfix.SessionSettings, error) {
	sessions := settings.SessionSettings()
	if len(sessions) != 1 {
		return quickfix.SessionID{}, nil, fmt.Errorf("fix config must define exactly one session, got %d", len(sessions))
	}
	for id, s := range sessions {
		return id, s, nil
	}
	return quickfix.SessionID{}, nil, nil
}
