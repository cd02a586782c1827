package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlatformConfig carries operator-tunable marketplace settings. The
// commission rate is read once per transaction creation; amounts already
// computed into a transaction are never affected by a reload.
type PlatformConfig struct {
	CommissionPercent float64 `mapstructure:"commissionPercent"`
	Currency          string  `mapstructure:"currency"`
}

func DefaultPlatformConfig() PlatformConfig {
	return PlatformConfig{
		CommissionPercent: 10.0,
		Currency:          "INR",
	}
}

type PlatformConfigHolder struct {
	current atomic.Value // holds PlatformConfig
}

func NewPlatformConfigHolder() (*PlatformConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("platform")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/escrow/config") // Volume-mounted config
	v.AddConfigPath("/etc/escrow")            // System config
	v.AddConfigPath(".")                      // Current directory (dev mode)

	v.SetEnvPrefix("ESCROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPlatformConfig()
	v.SetDefault("platform.commissionPercent", defaults.CommissionPercent)
	v.SetDefault("platform.currency", defaults.Currency)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg PlatformConfig
	if err := v.UnmarshalKey("platform", &cfg); err != nil {
		return nil, err
	}
	if err := validatePlatformConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlatformConfig
		if err := v.UnmarshalKey("platform", &updated); err != nil {
			log.Printf("[platform-config] reload failed: %v", err)
			return
		}
		if err := validatePlatformConfig(updated); err != nil {
			log.Printf("[platform-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[platform-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlatformConfigHolder) Get() PlatformConfig {
	return h.current.Load().(PlatformConfig)
}

// NewStaticPlatformConfigHolder returns a holder that never reloads.
// Used by tests and tools that must not watch the filesystem.
func NewStaticPlatformConfigHolder(cfg PlatformConfig) *PlatformConfigHolder {
	holder := &PlatformConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func validatePlatformConfig(cfg PlatformConfig) error {
	if cfg.CommissionPercent < 0 || cfg.CommissionPercent >= 100 {
		return errors.New("platform.commissionPercent must be in [0, 100)")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("platform.currency cannot be empty")
	}
	return nil
}
