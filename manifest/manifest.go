// Package manifest handles kworder.toml project configuration.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/kworder/pkg/bytecode"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "kworder.toml"

const (
	defaultCacheSize   = 256
	defaultCatalogPath = ".kworder/catalog.db"
)

// Manifest represents a kworder.toml configuration.
type Manifest struct {
	Analysis Analysis `toml:"analysis"`
	Catalog  Catalog  `toml:"catalog"`
	Log      Log      `toml:"log"`

	// Dir is the directory containing the kworder.toml file (set at load time).
	Dir string `toml:"-"`
}

// Analysis configures decoding and extraction.
type Analysis struct {
	InstructionSet string `toml:"instruction-set"`
	Cache          bool   `toml:"cache"`
	CacheSize      int    `toml:"cache-size"`
}

// Catalog configures the call-site catalog database.
type Catalog struct {
	Path string `toml:"path"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the configuration used when no kworder.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.Analysis.Cache = true
	m.applyDefaults()
	return m
}

// Load parses a kworder.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path. Relative paths inside it
// resolve against the file's directory.
func LoadFile(path string) (*Manifest, error) {
	dir := filepath.Dir(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown key %q in %s", undecoded[0].String(), path)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if !md.IsDefined("analysis", "cache") {
		m.Analysis.Cache = true
	}
	m.applyDefaults()

	if _, err := m.InstructionSet(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if m.Analysis.CacheSize < 0 {
		return nil, fmt.Errorf("%s: cache-size must not be negative", path)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Analysis.InstructionSet == "" {
		m.Analysis.InstructionSet = bytecode.Python27.Name
	}
	if m.Analysis.CacheSize == 0 {
		m.Analysis.CacheSize = defaultCacheSize
	}
	if m.Catalog.Path == "" {
		m.Catalog.Path = defaultCatalogPath
	}
}

// FindAndLoad walks up from startDir to find a kworder.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
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

// Write stores m as kworder.toml in dir, refusing to replace an existing file.
func Write(dir string, m *Manifest) error {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return fmt.Errorf("cannot encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("cannot write %s: %w", path, err)
	}
	return nil
}

// InstructionSet resolves the configured instruction set.
func (m *Manifest) InstructionSet() (*bytecode.InstructionSet, error) {
	return bytecode.LookupInstructionSet(m.Analysis.InstructionSet)
}

// CatalogPath returns the absolute path of the catalog database.
func (m *Manifest) CatalogPath() string {
	if filepath.IsAbs(m.Catalog.Path) {
		return m.Catalog.Path
	}
	return filepath.Join(m.Dir, m.Catalog.Path)
}

// LogFile returns the configured log file, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
