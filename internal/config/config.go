// Package config loads stoneforge.Options from a TOML file, overlaid with
// environment variables, with optional hot-reload.
//
// Grounded on the teacher's own config-loading shape: BurntSushi/toml is
// the file format used everywhere the teacher serializes structured
// settings (cmd/bd/formula.go's .formula.toml, internal/recipes' user
// recipes.toml), and the emergent-company-specmcp retrieval pack's
// internal/config.Load documents the "defaults, then file, then env"
// layering this package follows. Runtime overlay and hot-reload use
// spf13/viper + fsnotify, the same pair cmd/bd/list.go and
// cmd/bd/show_display.go use to watch .beads for file changes, here
// aimed at the options file instead of the data file.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix namespaces every overlay environment variable, e.g.
// STONEFORGE_PRIORITY_MAX_DEPTH.
const envPrefix = "stoneforge"

// PriorityOptions bounds the priority engine's traversal (spec.md §6).
type PriorityOptions struct {
	MaxDepth          int  `toml:"max_depth" mapstructure:"max_depth"`
	IncludeComplexity bool `toml:"include_complexity" mapstructure:"include_complexity"`
}

// PageOptions controls list-operation pagination defaults.
type PageOptions struct {
	DefaultLimit int `toml:"default_limit" mapstructure:"default_limit"`
}

// IDGeneratorOptions bounds generated-ID truncation length.
type IDGeneratorOptions struct {
	MinLen int `toml:"min_len" mapstructure:"min_len"`
	MaxLen int `toml:"max_len" mapstructure:"max_len"`
}

// CacheOptions controls the blocked-cache's automatic status transitions.
type CacheOptions struct {
	AutoTransitionStatus bool `toml:"auto_transition_status" mapstructure:"auto_transition_status"`
}

// GateOptions carries the injectable clock the gate engine uses for
// deterministic testing. It has no TOML representation; callers set it
// in code, never from a config file.
type GateOptions struct {
	ClockSource func() time.Time `toml:"-" mapstructure:"-"`
}

// Options is the full set of recognized options from spec.md §6
// "Enumerated configuration".
type Options struct {
	Priority    PriorityOptions    `toml:"priority" mapstructure:"priority"`
	Page        PageOptions        `toml:"page" mapstructure:"page"`
	IDGenerator IDGeneratorOptions `toml:"id_generator" mapstructure:"id_generator"`
	Cache       CacheOptions       `toml:"cache" mapstructure:"cache"`
	Gate        GateOptions        `toml:"-" mapstructure:"-"`
}

// Default returns the documented defaults: priority.maxDepth=10,
// page.defaultLimit=50, idGenerator.minLen/maxLen=3/8,
// cache.autoTransitionStatus=true, priority.includeComplexity=false.
func Default() Options {
	return Options{
		Priority:    PriorityOptions{MaxDepth: 10, IncludeComplexity: false},
		Page:        PageOptions{DefaultLimit: 50},
		IDGenerator: IDGeneratorOptions{MinLen: 3, MaxLen: 8},
		Cache:       CacheOptions{AutoTransitionStatus: true},
		Gate:        GateOptions{ClockSource: time.Now},
	}
}

// WriteTemplate encodes opts as TOML, for seeding a new config file.
func WriteTemplate(w io.Writer, opts Options) error {
	return toml.NewEncoder(w).Encode(opts)
}

// Load reads path (if it exists; a missing file is not an error) as TOML
// on top of Default(), then overlays STONEFORGE_*-prefixed environment
// variables, and returns the result. The Gate.ClockSource field is never
// read from file or environment; it always carries Default()'s value
// unless the caller overwrites it afterward.
func Load(path string) (Options, error) {
	opts := Default()
	clock := opts.Gate.ClockSource

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &opts); err != nil {
				return Options{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Options{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v, "priority.max_depth", "priority.include_complexity", "page.default_limit",
		"id_generator.min_len", "id_generator.max_len", "cache.auto_transition_status")

	if v.IsSet("priority.max_depth") {
		opts.Priority.MaxDepth = v.GetInt("priority.max_depth")
	}
	if v.IsSet("priority.include_complexity") {
		opts.Priority.IncludeComplexity = v.GetBool("priority.include_complexity")
	}
	if v.IsSet("page.default_limit") {
		opts.Page.DefaultLimit = v.GetInt("page.default_limit")
	}
	if v.IsSet("id_generator.min_len") {
		opts.IDGenerator.MinLen = v.GetInt("id_generator.min_len")
	}
	if v.IsSet("id_generator.max_len") {
		opts.IDGenerator.MaxLen = v.GetInt("id_generator.max_len")
	}
	if v.IsSet("cache.auto_transition_status") {
		opts.Cache.AutoTransitionStatus = v.GetBool("cache.auto_transition_status")
	}

	opts.Gate.ClockSource = clock
	return opts, nil
}

func bindEnv(v *viper.Viper, keys ...string) {
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Watcher hot-reloads Options from a TOML file as it changes on disk,
// using viper.WatchConfig (backed by fsnotify), matching how the teacher
// watches .beads for rewritten data files. Only file-driven fields
// change on reload; Gate.ClockSource is never touched.
type Watcher struct {
	v    *viper.Viper
	mu   sync.RWMutex
	opts Options
}

// NewWatcher loads path once and begins watching it for writes. path must
// already exist; use Load for the optional-file case.
func NewWatcher(path string, onChange func(Options)) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	w := &Watcher{v: v, opts: Default()}
	if err := w.reload(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := w.reload(); err == nil && onChange != nil {
			onChange(w.Current())
		}
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the most recently loaded Options, safe for concurrent use.
func (w *Watcher) Current() Options {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.opts
}

func (w *Watcher) reload() error {
	var opts Options
	if err := w.v.Unmarshal(&opts); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	if opts.Priority.MaxDepth == 0 {
		opts.Priority.MaxDepth = Default().Priority.MaxDepth
	}
	if opts.Page.DefaultLimit == 0 {
		opts.Page.DefaultLimit = Default().Page.DefaultLimit
	}
	if opts.IDGenerator.MinLen == 0 {
		opts.IDGenerator.MinLen = Default().IDGenerator.MinLen
	}
	if opts.IDGenerator.MaxLen == 0 {
		opts.IDGenerator.MaxLen = Default().IDGenerator.MaxLen
	}
	opts.Gate.ClockSource = time.Now

	w.mu.Lock()
	w.opts = opts
	w.mu.Unlock()
	return nil
}
