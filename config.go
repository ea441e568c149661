package atombase

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atombase/atombase/collection"
	"github.com/atombase/atombase/query"
	"github.com/atombase/atombase/slotring"
)

// PersistConfig groups the on-disk persistence knobs, nested the way
// friggdb/config.go nests local.Config under its top-level Config.
type PersistConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DataPath string `yaml:"data-path"`
}

// Config is the engine's top-level configuration, loaded from YAML the same
// way friggdb.Config and tempodb's Config are: a flat set of sizing knobs
// plus nested sub-configs for the worker pool and the slot ring.
type Config struct {
	MaxConcurrentInserts int `yaml:"max-concurrent-inserts"`

	BinMaxElems int `yaml:"bin-max-elems"`
	BinMaxBytes int `yaml:"bin-max-bytes"`
	MaxBins     int `yaml:"max-bins"`

	Pool    query.PoolConfig `yaml:"pool"`
	Ring    slotring.Config  `yaml:"slot_ring"`
	Persist PersistConfig    `yaml:"persist"`
}

// DefaultConfig returns the sizing defaults exercised by the test suite and
// the CLI: a 64k-element, 16 MiB bin, unbounded growth, the teacher's
// default pool/ring sizing.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentInserts: 64,
		BinMaxElems:          65536,
		BinMaxBytes:          16 << 20,
		MaxBins:              0,
		Pool:                 query.DefaultPoolConfig(),
		Ring:                 slotring.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file the way friggdb/config.go's callers
// do, layering onto DefaultConfig rather than requiring every field.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("atombase: load config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("atombase: parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) collectionConfig() collection.Config {
	return collection.Config{
		BinMaxElems: c.BinMaxElems,
		BinMaxBytes: c.BinMaxBytes,
		MaxBins:     c.MaxBins,
	}
}
