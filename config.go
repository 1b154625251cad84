package trellis

import (
	"fmt"
	"os"
	"reflect"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Config holds the handful of settings a hosting process needs to stand up
// a Controller, an IntrospectionServer and (optionally) a CronTime: how
// much to log, where to serve introspection, and how the clock advances.
type Config struct {
	LogLevel       string `toml:"log_level" yaml:"log_level"`
	DebugAddr      string `toml:"debug_addr" yaml:"debug_addr"`
	AutoUpdateCron string `toml:"auto_update_cron" yaml:"auto_update_cron"`
	AutoUpdate     bool   `toml:"auto_update" yaml:"auto_update"`
}

// DefaultConfig returns the zero-configuration defaults: info logging, no
// debug server, no auto-updating clock.
func DefaultConfig() Config {
	return Config{LogLevel: "info"}
}

// ConfigFeeder loads configuration into cfg. Each feeder handles one
// source (a TOML file, a YAML file, the process environment), mirroring
// the pack's pluggable-feeder convention for layering configuration
// sources from lowest to highest precedence.
type ConfigFeeder interface {
	Feed(cfg *Config) error
}

// TomlFeeder loads Config fields from a TOML file at Path.
type TomlFeeder struct{ Path string }

func (f TomlFeeder) Feed(cfg *Config) error {
	if _, err := toml.DecodeFile(f.Path, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigFeederError, f.Path, err)
	}
	return nil
}

// YamlFeeder loads Config fields from a YAML file at Path.
type YamlFeeder struct{ Path string }

func (f YamlFeeder) Feed(cfg *Config) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigFeederError, f.Path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigFeederError, f.Path, err)
	}
	return nil
}

// EnvFeeder overrides Config fields from environment variables with the
// given Prefix (e.g. Prefix "TRELLIS_" reads TRELLIS_LOG_LEVEL).
type EnvFeeder struct{ Prefix string }

func (f EnvFeeder) Feed(cfg *Config) error {
	if v, ok := os.LookupEnv(f.Prefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := os.LookupEnv(f.Prefix + "DEBUG_ADDR"); ok {
		cfg.DebugAddr = v
	}
	if v, ok := os.LookupEnv(f.Prefix + "AUTO_UPDATE_CRON"); ok {
		cfg.AutoUpdateCron = v
	}
	if v, ok := os.LookupEnv(f.Prefix + "AUTO_UPDATE"); ok {
		converted, err := cast.FromType(v, reflect.TypeOf(cfg.AutoUpdate))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrConfigFeederError, f.Prefix+"AUTO_UPDATE", err)
		}
		cfg.AutoUpdate = converted.(bool)
	}
	return nil
}

// Load applies feeders in order, later ones overriding earlier ones, onto
// DefaultConfig.
func Load(feeders ...ConfigFeeder) (Config, error) {
	cfg := DefaultConfig()
	for _, f := range feeders {
		if err := f.Feed(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// LoadInto behaves like Load, but decodes into an embedding program's own
// config struct instead of Trellis's fixed Config, for a host that extends
// the feeder-layered TOML/YAML/env precedence to its own settings. target
// must be non-nil, since a feeder can only write through it.
//
// Grounded on the teacher framework's GetService, which rejects a nil
// reflection target the same way before using it.
func LoadInto[T any](target *T, feeders ...func(*T) error) error {
	if target == nil {
		return ErrConfigNotPointer
	}
	for _, f := range feeders {
		if err := f(target); err != nil {
			return err
		}
	}
	return nil
}

// SetFromExternal coerces an arbitrary external value (a query parameter,
// a JSON-decoded interface{}, an env var string) into the type of a Value
// cell's current contents and writes it, for cells fed by loosely-typed
// external sources instead of already-typed Go callers. If the cell has
// never held a value, external is written as-is.
//
// Grounded on golobby/cast's FromType, the same conversion the teacher
// framework's env feeder uses to coerce a string into a struct field's
// declared type.
func SetFromExternal(v *Value, external any) error {
	cur := v.Get()
	if cur == nil {
		return v.Set(external)
	}
	converted, err := cast.FromType(external, reflect.TypeOf(cur))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfigFeederError, err)
	}
	return v.Set(converted)
}
