package bridge

import (
	"maps"
	"sync/atomic"
)

// Config is the bridge configuration captured once at Init and handed to whatever builds
// the delegate.
type Config struct {
	Name       string
	InitParams map[string]string
}

// Param returns an init parameter.
func (c Config) Param(name string) string {
	return c.InitParams[name]
}

// ConfigHolder publishes the bridge configuration to delegate factories.
type ConfigHolder struct {
	cfg atomic.Pointer[Config]
}

// NewConfigHolder creates an empty holder.
func NewConfigHolder() *ConfigHolder {
	return &ConfigHolder{}
}

// Set publishes cfg. The holder keeps its own copy of the parameters.
func (h *ConfigHolder) Set(cfg Config) {
	cfg.InitParams = maps.Clone(cfg.InitParams)
	h.cfg.Store(&cfg)
}

// Get returns the published configuration, if any.
func (h *ConfigHolder) Get() (Config, bool) {
	cfg := h.cfg.Load()
	if cfg == nil {
		return Config{}, false
	}
	out := *cfg
	out.InitParams = maps.Clone(cfg.InitParams)
	return out, true
}
