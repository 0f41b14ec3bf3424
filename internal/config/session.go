package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	DefaultSessionName          = "USERSESS"
	DefaultSessionTTL           = 3600 * time.Second
	DefaultPersistentSessionTTL = 365 * 24 * time.Hour
	DefaultGCInterval           = 10 * time.Minute
	DefaultGCLockTTL            = 2 * time.Minute
)

// SessionConfig holds the session tunables that may be changed while running.
type SessionConfig struct {
	// Name is the interactive session cookie name. The persistent login cookie is Name + "_persist".
	Name          string        `mapstructure:"name"`
	TTL           time.Duration `mapstructure:"ttl"`
	PersistentTTL time.Duration `mapstructure:"persistentTTL"`
	GCOnRequest   bool          `mapstructure:"gcOnRequest"`
	GCInterval    time.Duration `mapstructure:"gcInterval"`
	GCLockTTL     time.Duration `mapstructure:"gcLockTTL"`
}

func (c SessionConfig) PersistentCookieName() string {
	return c.Name + "_persist"
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Name:          DefaultSessionName,
		TTL:           DefaultSessionTTL,
		PersistentTTL: DefaultPersistentSessionTTL,
		GCInterval:    DefaultGCInterval,
		GCLockTTL:     DefaultGCLockTTL,
	}
}

type SessionConfigHolder struct {
	current atomic.Value // holds SessionConfig
}

// NewStaticSessionConfigHolder pins cfg without watching any file.
func NewStaticSessionConfigHolder(cfg SessionConfig) *SessionConfigHolder {
	holder := &SessionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

// NewSessionConfigHolder reads session.yml and reloads it on change.
// A missing file keeps the defaults.
func NewSessionConfigHolder(appCfg Config, log *zap.Logger) (*SessionConfigHolder, error) {
	log = log.Named("config.session")

	v := viper.New()
	v.SetConfigName("session")
	v.SetConfigType("yml")
	if appCfg.SessionConfigPath != "" {
		v.AddConfigPath(appCfg.SessionConfigPath)
	}
	v.AddConfigPath("/etc/identity")
	v.AddConfigPath(".")

	v.SetEnvPrefix("IDENTITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		found = false
	}

	cfg, err := decodeSessionConfig(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticSessionConfigHolder(cfg)
	if !found {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeSessionConfig(v)
		if err != nil {
			log.Warn("session config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("session config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *SessionConfigHolder) Get() SessionConfig {
	return h.current.Load().(SessionConfig)
}

func decodeSessionConfig(v *viper.Viper) (SessionConfig, error) {
	cfg := DefaultSessionConfig()
	if err := v.UnmarshalKey("session", &cfg); err != nil {
		return SessionConfig{}, fmt.Errorf("decode session config: %w", err)
	}
	if err := validateSessionConfig(cfg); err != nil {
		return SessionConfig{}, err
	}
	return cfg, nil
}

func validateSessionConfig(cfg SessionConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("session.name cannot be empty")
	}
	if cfg.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if cfg.PersistentTTL <= 0 {
		return errors.New("session.persistentTTL must be positive")
	}
	if cfg.GCInterval < 0 || cfg.GCLockTTL < 0 {
		return errors.New("session gc durations cannot be negative")
	}
	return nil
}
