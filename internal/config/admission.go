package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AdmissionConfig is the operator-tunable part of request admission. It is
// hot reloaded from admission.yml.
type AdmissionConfig struct {
	// PublicPaths are extra route patterns that bypass tenant admission.
	PublicPaths []string `mapstructure:"publicPaths"`
	// ReservedHosts can never be claimed by signup.
	ReservedHosts []string        `mapstructure:"reservedHosts"`
	PublicLimit   PublicRateLimit `mapstructure:"publicRateLimit"`
}

type PublicRateLimit struct {
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		PublicPaths:   []string{"/health", "/metrics"},
		ReservedHosts: []string{"www", "api", "admin", "app", "localhost"},
		PublicLimit:   PublicRateLimit{Rate: 1, Burst: 10},
	}
}

// IsReservedHost reports whether host or its first label is reserved.
func (c AdmissionConfig) IsReservedHost(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	label, _, _ := strings.Cut(host, ".")
	for _, reserved := range c.ReservedHosts {
		reserved = strings.ToLower(strings.TrimSpace(reserved))
		if reserved == "" {
			continue
		}
		if host == reserved || label == reserved {
			return true
		}
	}
	return false
}

type AdmissionConfigHolder struct {
	current atomic.Value // holds AdmissionConfig
}

// NewStaticAdmissionHolder returns a holder that never reloads.
func NewStaticAdmissionHolder(cfg AdmissionConfig) *AdmissionConfigHolder {
	holder := &AdmissionConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewAdmissionConfigHolder(log *zap.Logger) (*AdmissionConfigHolder, error) {
	log = log.Named("config.admission")
	v := viper.New()

	v.SetConfigName("admission")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/controlplane/config")
	v.AddConfigPath("/etc/controlplane")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONTROLPLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAdmissionConfig()
	v.SetDefault("admission.publicPaths", defaults.PublicPaths)
	v.SetDefault("admission.reservedHosts", defaults.ReservedHosts)
	v.SetDefault("admission.publicRateLimit.rate", defaults.PublicLimit.Rate)
	v.SetDefault("admission.publicRateLimit.burst", defaults.PublicLimit.Burst)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg AdmissionConfig
	if err := v.UnmarshalKey("admission", &cfg); err != nil {
		return nil, err
	}
	if err := validateAdmissionConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticAdmissionHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AdmissionConfig
		if err := v.UnmarshalKey("admission", &updated); err != nil {
			log.Warn("admission config reload failed", zap.Error(err))
			return
		}
		if err := validateAdmissionConfig(updated); err != nil {
			log.Warn("invalid admission config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("admission config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *AdmissionConfigHolder) Get() AdmissionConfig {
	if h == nil {
		return DefaultAdmissionConfig()
	}
	return h.current.Load().(AdmissionConfig)
}

func validateAdmissionConfig(cfg AdmissionConfig) error {
	if cfg.PublicLimit.Rate < 0 || cfg.PublicLimit.Burst < 0 {
		return errors.New("admission.publicRateLimit must not be negative")
	}
	for _, path := range cfg.PublicPaths {
		if !strings.HasPrefix(strings.TrimSpace(path), "/") {
			return errors.New("admission.publicPaths entries must start with /")
		}
	}
	return nil
}
