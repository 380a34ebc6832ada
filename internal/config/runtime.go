package config

import (
	"fmt"
	"sync"
	"time"
)

// RuntimeConfig holds the calibration values that can be changed while the
// service runs. The alignment acceptance ratio and the shutdown cutoff are
// empirically chosen constants, so they stay adjustable rather than baked
// in. All methods are thread-safe.
type RuntimeConfig struct {
	mu                  sync.RWMutex
	alignMinRatio       float64       // 0.0 - 1.0 (default from env)
	shutdownCutoffHours float64       // 12.0 - 24.0 (default from env)
	horizonDays         int           // 1 - 366 (default from env)
	refreshInterval     time.Duration // 10s - 24h (default from env)
}

// NewRuntimeConfig creates a new RuntimeConfig from the static Config.
func NewRuntimeConfig(cfg *Config) *RuntimeConfig {
	return &RuntimeConfig{
		alignMinRatio:       cfg.AlignMinRatio,
		shutdownCutoffHours: cfg.ShutdownCutoffHours,
		horizonDays:         cfg.HorizonDays,
		refreshInterval:     cfg.RefreshInterval,
	}
}

// GetAlignMinRatio returns the current alignment acceptance ratio.
func (rc *RuntimeConfig) GetAlignMinRatio() float64 {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.alignMinRatio
}

// GetShutdownCutoffHours returns the current annual-shutdown cutoff.
func (rc *RuntimeConfig) GetShutdownCutoffHours() float64 {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.shutdownCutoffHours
}

// GetHorizonDays returns the current forecast horizon in days.
func (rc *RuntimeConfig) GetHorizonDays() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.horizonDays
}

// GetRefreshInterval returns the current refresh interval.
func (rc *RuntimeConfig) GetRefreshInterval() time.Duration {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.refreshInterval
}

// SetAlignMinRatio sets the alignment acceptance ratio.
// Valid range: 0.0 - 1.0
func (rc *RuntimeConfig) SetAlignMinRatio(ratio float64) error {
	if ratio < 0.0 || ratio > 1.0 {
		return fmt.Errorf("align min ratio must be between 0.0 and 1.0, got %f", ratio)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.alignMinRatio = ratio
	return nil
}

// SetShutdownCutoffHours sets the annual-shutdown cutoff.
// Valid range: 12.0 - 24.0 hours
func (rc *RuntimeConfig) SetShutdownCutoffHours(hours float64) error {
	if hours < 12.0 || hours > 24.0 {
		return fmt.Errorf("shutdown cutoff must be between 12.0 and 24.0 hours, got %f", hours)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.shutdownCutoffHours = hours
	return nil
}

// SetHorizonDays sets the forecast horizon.
// Valid range: 1 - 366 days
func (rc *RuntimeConfig) SetHorizonDays(days int) error {
	if days < 1 || days > 366 {
		return fmt.Errorf("horizon must be between 1 and 366 days, got %d", days)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.horizonDays = days
	return nil
}

// SetRefreshInterval sets the interval between refresh passes.
// Valid range: 10s - 24h
func (rc *RuntimeConfig) SetRefreshInterval(interval time.Duration) error {
	if interval < 10*time.Second || interval > 24*time.Hour {
		return fmt.Errorf("refresh interval must be between 10s and 24h, got %s", interval)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.refreshInterval = interval
	return nil
}

// RuntimeConfigSnapshot is a point-in-time copy of all runtime values.
type RuntimeConfigSnapshot struct {
	AlignMinRatio       float64
	ShutdownCutoffHours float64
	HorizonDays         int
	RefreshInterval     time.Duration
}

// Snapshot returns a point-in-time copy of all runtime config values.
func (rc *RuntimeConfig) Snapshot() RuntimeConfigSnapshot {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return RuntimeConfigSnapshot{
		AlignMinRatio:       rc.alignMinRatio,
		ShutdownCutoffHours: rc.shutdownCutoffHours,
		HorizonDays:         rc.horizonDays,
		RefreshInterval:     rc.refreshInterval,
	}
}
