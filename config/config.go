// Package config handles flatprog.toml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/flatprog/emit"
)

// FileName is the project file name searched for by FindAndLoad.
const FileName = "flatprog.toml"

var log = commonlog.GetLogger("flatprog.config")

// Config represents a flatprog.toml project configuration.
type Config struct {
	Program Program `toml:"program"`
	Options Options `toml:"options"`

	// Methods maps method names to graph bundle files.
	Methods map[string]string `toml:"methods"`

	// PrimGetters maps getter names to the constants they return.
	PrimGetters map[string]any `toml:"prim-getters"`

	// Dir is the directory containing the flatprog.toml file (set at load time).
	Dir string `toml:"-"`

	// getterOrder is the document order of the [prim-getters] keys.
	getterOrder []string
}

// Program configures the program name and artifact paths. Relative paths
// are resolved against Config.Dir.
type Program struct {
	Name    string `toml:"name"`
	Output  string `toml:"output"`
	Segment string `toml:"segment"`
	Debug   string `toml:"debug"`
	DebugDB string `toml:"debug-db"`
}

// Options configures emission.
type Options struct {
	EmitStacktrace          bool `toml:"emit-stacktrace"`
	ExtractConstantSegment  bool `toml:"extract-constant-segment"`
	ConstantTensorAlignment int  `toml:"constant-tensor-alignment"`
	LoadConcurrency         int  `toml:"load-concurrency"`
}

// Load parses a flatprog.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	c.getterOrder = getterOrder(md.Keys())
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		log.Warningf("%s: ignoring unknown keys %v", path, undecoded)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if c.Program.Name == "" {
		c.Program.Name = filepath.Base(c.Dir)
	}
	if c.Program.Output == "" {
		c.Program.Output = c.Program.Name + ".cbor"
	}
	if c.Options.LoadConcurrency <= 0 {
		c.Options.LoadConcurrency = 4
	}

	log.Debugf("loaded %s: %d methods, %d prim getters", path, len(c.Methods), len(c.PrimGetters))
	return &c, nil
}

// FindAndLoad walks up from startDir to find a flatprog.toml file,
// then loads and returns the config. Returns nil if no config is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves a configured path against the config directory. Empty stays
// empty.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// EmitOptions converts the [options] and [prim-getters] tables into
// emit.Options. Getters keep the order they are written in the file.
func (c *Config) EmitOptions() (emit.Options, error) {
	opts := emit.Options{
		EmitStacktrace:          c.Options.EmitStacktrace,
		ExtractConstantSegment:  c.Options.ExtractConstantSegment,
		ConstantTensorAlignment: c.Options.ConstantTensorAlignment,
	}
	if c.PrimGetters == nil {
		return opts, nil
	}

	opts.PrimGetters = make([]emit.PrimGetter, 0, len(c.PrimGetters))
	for _, name := range c.getterNames() {
		v, err := getterValue(c.PrimGetters[name])
		if err != nil {
			return emit.Options{}, fmt.Errorf("prim getter %q: %w", name, err)
		}
		opts.PrimGetters = append(opts.PrimGetters, emit.PrimGetter{Name: name, Value: v})
	}
	return opts, nil
}

// getterOrder returns the [prim-getters] names in the order they first
// appear. Arrays of tables repeat a name once per element, and dotted keys
// only appear with their full path.
func getterOrder(keys []toml.Key) []string {
	var order []string
	seen := make(map[string]bool)
	for _, key := range keys {
		if len(key) < 2 || key[0] != "prim-getters" || seen[key[1]] {
			continue
		}
		seen[key[1]] = true
		order = append(order, key[1])
	}
	return order
}

// getterNames returns getter names in document order. Configs built in code
// have no document order; their getters are returned sorted.
func (c *Config) getterNames() []string {
	if len(c.getterOrder) == len(c.PrimGetters) {
		return c.getterOrder
	}
	return sortedKeys(c.PrimGetters)
}
