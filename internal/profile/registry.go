// Package profile loads named backtest presets from a YAML file and hot
// reloads them on change. A profile binds symbols to run parameters so
// the HTTP API can start a run by name instead of repeating every knob.
package profile

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"kairos/internal/logger"
)

// Definition is one named preset.
type Definition struct {
	Name      string   `mapstructure:"-" yaml:"name"`
	Targets   []string `mapstructure:"targets" yaml:"targets"`
	Timeframe string   `mapstructure:"timeframe" yaml:"timeframe"`
	Exchange  string   `mapstructure:"exchange" yaml:"exchange"`
	Source    string   `mapstructure:"source" yaml:"source"`
	Default   bool     `mapstructure:"default" yaml:"default"`

	InitialCapital      float64 `mapstructure:"initial_capital" yaml:"initial_capital"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	RiskFraction        float64 `mapstructure:"risk_fraction" yaml:"risk_fraction"`
	WarmupCandles       int     `mapstructure:"warmup_candles" yaml:"warmup_candles"`
	EvalStep            string  `mapstructure:"eval_step" yaml:"eval_step"`
	CloseAtEnd          bool    `mapstructure:"close_at_end" yaml:"close_at_end"`

	targetsUpper []string
}

// TargetsUpper returns the normalized symbol list.
func (d Definition) TargetsUpper() []string {
	out := make([]string, len(d.targetsUpper))
	copy(out, d.targetsUpper)
	return out
}

type fileConfig struct {
	Profiles map[string]Definition `mapstructure:"profiles"`
}

// Snapshot is a read-only view handed to listeners.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]Definition
}

type ChangeListener func(Snapshot)

// Registry reads the profile file and watches it for edits.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("profile registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read profile config failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload failed (%s): %v", evt.Name, err)
			return
		}
		r.notify()
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Get returns a profile by name.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.snapshot.Profiles[strings.TrimSpace(name)]
	return def, ok
}

// Resolve finds the profile covering a symbol, falling back to the one
// marked default.
func (r *Registry) Resolve(symbol string) (Definition, bool) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	defer r.mu.RUnlock()
	var fallback *Definition
	for name := range r.snapshot.Profiles {
		def := r.snapshot.Profiles[name]
		for _, t := range def.targetsUpper {
			if t == sym {
				return def, true
			}
		}
		if def.Default {
			d := def
			fallback = &d
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Definition{}, false
}

// Subscribe registers a listener and immediately delivers the current
// snapshot on a fresh goroutine.
func (r *Registry) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	snap := cloneSnapshot(r.snapshot)
	r.mu.Unlock()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorf("profile listener panic: %v", rec)
			}
		}()
		fn(snap)
	}()
}

// ExportYAML renders the active profiles back to YAML, used by the API
// so clients can inspect the effective presets after normalization.
func (r *Registry) ExportYAML() ([]byte, error) {
	snap := r.Snapshot()
	out := make(map[string]Definition, len(snap.Profiles))
	for name, def := range snap.Profiles {
		def.Targets = def.TargetsUpper()
		out[name] = def
	}
	return yaml.Marshal(map[string]any{"profiles": out})
}

func (r *Registry) notify() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("profile listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (r *Registry) reload() error {
	var fileCfg fileConfig
	if err := r.v.Unmarshal(&fileCfg); err != nil {
		return fmt.Errorf("parse profile config failed: %w", err)
	}
	normalized := make(map[string]Definition, len(fileCfg.Profiles))
	for name, def := range fileCfg.Profiles {
		normalized[name] = normalizeDefinition(name, def)
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: normalized,
	}
	r.mu.Unlock()
	logger.Infof("profile registry reloaded %d profiles from %s", len(normalized), filepath.Base(r.path))
	return nil
}

func normalizeDefinition(name string, def Definition) Definition {
	def.Name = name
	def.Timeframe = strings.ToLower(strings.TrimSpace(def.Timeframe))
	def.Exchange = strings.ToLower(strings.TrimSpace(def.Exchange))
	def.Source = strings.ToLower(strings.TrimSpace(def.Source))
	def.targetsUpper = def.targetsUpper[:0]
	for _, sym := range def.Targets {
		s := strings.ToUpper(strings.TrimSpace(sym))
		if s != "" {
			def.targetsUpper = append(def.targetsUpper, s)
		}
	}
	return def
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]Definition, len(src.Profiles)),
	}
	for name, def := range src.Profiles {
		dst.Profiles[name] = def
	}
	return dst
}
