package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// SyncPolicy governs offline-sync server behavior that operators may tune
// without redeploying: ledger retention, batch limits and sweep cadence.
type SyncPolicy struct {
	RetentionDays      int `mapstructure:"retentionDays"`
	MaxBatchOperations int `mapstructure:"maxBatchOperations"`
	SweepIntervalMin   int `mapstructure:"sweepIntervalMinutes"`
	SweepBatchSize     int `mapstructure:"sweepBatchSize"`
}

// DefaultSyncPolicy returns the policy used when no config file is present.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		RetentionDays:      30,
		MaxBatchOperations: 100,
		SweepIntervalMin:   60,
		SweepBatchSize:     500,
	}
}

// SyncPolicyHolder exposes the current policy with hot reload.
type SyncPolicyHolder struct {
	current atomic.Value // holds SyncPolicy
}

// NewSyncPolicyHolder loads sync.yml and watches it for changes.
func NewSyncPolicyHolder() (*SyncPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("sync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/kassa/config")
	v.AddConfigPath("/etc/kassa")
	v.AddConfigPath(".")

	v.SetEnvPrefix("KASSA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSyncPolicy()
	v.SetDefault("sync.retentionDays", defaults.RetentionDays)
	v.SetDefault("sync.maxBatchOperations", defaults.MaxBatchOperations)
	v.SetDefault("sync.sweepIntervalMinutes", defaults.SweepIntervalMin)
	v.SetDefault("sync.sweepBatchSize", defaults.SweepBatchSize)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy SyncPolicy
	if err := v.UnmarshalKey("sync", &policy); err != nil {
		return nil, err
	}
	if err := validateSyncPolicy(policy); err != nil {
		return nil, err
	}

	holder := &SyncPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SyncPolicy
		if err := v.UnmarshalKey("sync", &updated); err != nil {
			log.Printf("[sync-policy] reload failed: %v", err)
			return
		}
		if err := validateSyncPolicy(updated); err != nil {
			log.Printf("[sync-policy] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[sync-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticSyncPolicyHolder wraps a fixed policy without file watching.
func NewStaticSyncPolicyHolder(policy SyncPolicy) *SyncPolicyHolder {
	holder := &SyncPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *SyncPolicyHolder) Get() SyncPolicy {
	return h.current.Load().(SyncPolicy)
}

func validateSyncPolicy(policy SyncPolicy) error {
	if policy.RetentionDays <= 0 {
		return errors.New("sync.retentionDays must be positive")
	}
	if policy.MaxBatchOperations <= 0 {
		return errors.New("sync.maxBatchOperations must be positive")
	}
	if policy.SweepIntervalMin <= 0 {
		return errors.New("sync.sweepIntervalMinutes must be positive")
	}
	if policy.SweepBatchSize <= 0 {
		return errors.New("sync.sweepBatchSize must be positive")
	}
	return nil
}
