package target

import (
	"fmt"
	"os"

	"github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// EnvInternalByValue forces callee-side copies of indirect parameters.
const EnvInternalByValue = "CALLGEN_INTERNAL_BY_VALUE"

// Config is the on-disk build description.
type Config struct {
	Arch              string   `toml:"arch"`
	OS                string   `toml:"os"`
	Features          []string `toml:"features"`
	Sanitize          []string `toml:"sanitize"`
	DisableRedZone    bool     `toml:"disable_red_zone"`
	InternalNoInline  bool     `toml:"internal_no_inline"`
	InternalByValue   bool     `toml:"internal_by_value"`
	SeparateModules   bool     `toml:"separate_modules"`
	MaxVariadicBuffer string   `toml:"max_variadic_buffer"`
	InstrumentEnter   string   `toml:"instrument_enter"`
	InstrumentExit    string   `toml:"instrument_exit"`
}

// LoadConfig reads a TOML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read target config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a TOML config.
func ParseConfig(data []byte) (*Config, error) {
	cfg := &Config{Arch: string(ArchAMD64), OS: string(OSLinux)}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse target config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var err error
	if !knownArch(Arch(c.Arch)) {
		err = multierr.Append(err, fmt.Errorf("unknown arch %q", c.Arch))
	}
	for _, s := range c.Sanitize {
		if _, ok := sanitizerNames[s]; !ok {
			err = multierr.Append(err, fmt.Errorf("unknown sanitizer %q", s))
		}
	}
	if c.MaxVariadicBuffer != "" {
		if _, perr := units.RAMInBytes(c.MaxVariadicBuffer); perr != nil {
			err = multierr.Append(err, fmt.Errorf("max_variadic_buffer: %w", perr))
		}
	}
	return err
}

var sanitizerNames = map[string]Sanitizer{
	"address": SanitizeAddress,
	"memory":  SanitizeMemory,
	"thread":  SanitizeThread,
}

func knownArch(a Arch) bool {
	for _, k := range Arches {
		if k == a {
			return true
		}
	}
	return false
}

// Target builds the target described by the config, applying environment
// overrides.
func (c *Config) Target() (*Target, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	t := New(Arch(c.Arch), OS(c.OS))
	t.EnableFeatures(c.Features...)
	for _, s := range c.Sanitize {
		t.Sanitizers |= sanitizerNames[s]
	}
	t.DisableRedZone = c.DisableRedZone
	t.InternalNoInline = c.InternalNoInline
	t.InternalByValue = c.InternalByValue || os.Getenv(EnvInternalByValue) == "1"
	t.SeparateModules = c.SeparateModules
	t.InstrumentEnter = c.InstrumentEnter
	t.InstrumentExit = c.InstrumentExit
	if c.MaxVariadicBuffer != "" {
		n, _ := units.RAMInBytes(c.MaxVariadicBuffer)
		t.MaxVariadicBuffer = n
	}
	return t, nil
}
