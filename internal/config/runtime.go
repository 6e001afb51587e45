package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RuntimeConfig holds tunables that can change without a restart.
type RuntimeConfig struct {
	Ledger    LedgerRuntime    `mapstructure:"ledger"`
	Gateway   GatewayRuntime   `mapstructure:"gateway"`
	Alert     AlertRuntime     `mapstructure:"alert"`
	Scheduler SchedulerRuntime `mapstructure:"scheduler"`
}

type LedgerRuntime struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

type GatewayRuntime struct {
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// ResolveAfter is the minimum intent age before it may be resolved against the provider.
	ResolveAfter time.Duration `mapstructure:"resolveAfter"`
}

type AlertRuntime struct {
	Channel            string `mapstructure:"channel"`
	NotifyOnDivergence bool   `mapstructure:"notifyOnDivergence"`
}

type SchedulerRuntime struct {
	AnchorBatchSize int `mapstructure:"anchorBatchSize"`
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Ledger: LedgerRuntime{
			Timeout:  5 * time.Second,
			CacheTTL: 24 * time.Hour,
		},
		Gateway: GatewayRuntime{
			PollInterval: 3 * time.Second,
			ResolveAfter: time.Minute,
		},
		Alert: AlertRuntime{
			Channel:            "#revenue-alerts",
			NotifyOnDivergence: true,
		},
		Scheduler: SchedulerRuntime{
			AnchorBatchSize: 50,
		},
	}
}

type RuntimeConfigHolder struct {
	current atomic.Value // holds RuntimeConfig
}

// NewStaticRuntimeConfigHolder returns a holder pinned to cfg.
func NewStaticRuntimeConfigHolder(cfg RuntimeConfig) *RuntimeConfigHolder {
	holder := &RuntimeConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewRuntimeConfigHolder() (*RuntimeConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("levy")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/levy")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LEVY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRuntimeConfig()
	v.SetDefault("runtime.ledger.timeout", defaults.Ledger.Timeout)
	v.SetDefault("runtime.ledger.cacheTTL", defaults.Ledger.CacheTTL)
	v.SetDefault("runtime.gateway.pollInterval", defaults.Gateway.PollInterval)
	v.SetDefault("runtime.gateway.resolveAfter", defaults.Gateway.ResolveAfter)
	v.SetDefault("runtime.alert.channel", defaults.Alert.Channel)
	v.SetDefault("runtime.alert.notifyOnDivergence", defaults.Alert.NotifyOnDivergence)
	v.SetDefault("runtime.scheduler.anchorBatchSize", defaults.Scheduler.AnchorBatchSize)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg RuntimeConfig
	if err := v.UnmarshalKey("runtime", &cfg); err != nil {
		return nil, err
	}
	if err := validateRuntimeConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticRuntimeConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated RuntimeConfig
		if err := v.UnmarshalKey("runtime", &updated); err != nil {
			log.Printf("[runtime-config] reload failed: %v", err)
			return
		}
		if err := validateRuntimeConfig(updated); err != nil {
			log.Printf("[runtime-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[runtime-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *RuntimeConfigHolder) Get() RuntimeConfig {
	if h == nil {
		return DefaultRuntimeConfig()
	}
	cfg, ok := h.current.Load().(RuntimeConfig)
	if !ok {
		return DefaultRuntimeConfig()
	}
	return cfg
}

func validateRuntimeConfig(cfg RuntimeConfig) error {
	if cfg.Ledger.Timeout <= 0 {
		return errors.New("runtime.ledger.timeout must be positive")
	}
	if cfg.Gateway.PollInterval <= 0 {
		return errors.New("runtime.gateway.pollInterval must be positive")
	}
	if cfg.Scheduler.AnchorBatchSize <= 0 {
		return errors.New("runtime.scheduler.anchorBatchSize must be positive")
	}
	return nil
}
