// Package manifest describes classes, generic functions and overrides
// declaratively, in TOML or YAML, and applies them to a dispatch runtime.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/multimethod/dispatch"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	ErrInvalidManifest   = errors.New("invalid manifest")
)

// DefaultNames are the file names FindAndLoad looks for, in order.
var DefaultNames = []string{"multimethod.toml", "multimethod.yaml", "multimethod.yml"}

// Manifest is one method-set description, with its includes merged in.
type Manifest struct {
	// Namespace qualifies the class names declared in this file.
	Namespace string   `toml:"namespace" yaml:"namespace"`
	Include   []string `toml:"include" yaml:"include"`

	Compile   Compile    `toml:"compile" yaml:"compile"`
	Classes   []Class    `toml:"class" yaml:"class"`
	Functions []Function `toml:"function" yaml:"function"`
	Overrides []Override `toml:"override" yaml:"override"`

	// Path is the absolute path of the file (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Compile holds the [compile] table. Unset keys keep the defaults.
type Compile struct {
	HashTrials       *int    `toml:"hash-trials" yaml:"hash-trials"`
	HashMaxExtraBits *int    `toml:"hash-max-extra-bits" yaml:"hash-max-extra-bits"`
	Seed             *uint64 `toml:"seed" yaml:"seed"`
}

// Options returns the dispatch options the table describes.
func (c Compile) Options() dispatch.Options {
	opts := dispatch.DefaultOptions()
	if c.HashTrials != nil {
		opts.HashTrials = *c.HashTrials
	}
	if c.HashMaxExtraBits != nil {
		opts.HashMaxExtraBits = *c.HashMaxExtraBits
	}
	if c.Seed != nil {
		opts.Seed = *c.Seed
	}
	return opts
}

// fill sets the keys c leaves unset from other.
func (c *Compile) fill(other Compile) {
	if c.HashTrials == nil {
		c.HashTrials = other.HashTrials
	}
	if c.HashMaxExtraBits == nil {
		c.HashMaxExtraBits = other.HashMaxExtraBits
	}
	if c.Seed == nil {
		c.Seed = other.Seed
	}
}

// Class is a [[class]] entry.
type Class struct {
	Name     string   `toml:"name" yaml:"name"`
	Abstract bool     `toml:"abstract" yaml:"abstract"`
	Bases    []string `toml:"bases" yaml:"bases"`
	// ID pins the type id. Zero means assign one.
	ID uint64 `toml:"id" yaml:"id"`

	scope string
}

// QualifiedName returns the name under the declaring file's namespace.
func (c *Class) QualifiedName() string {
	return Qualify(c.scope, c.Name)
}

// Function is a [[function]] entry.
type Function struct {
	Name    string   `toml:"name" yaml:"name"`
	Arity   int      `toml:"arity" yaml:"arity"`
	Virtual []int    `toml:"virtual" yaml:"virtual"`
	Bounds  []string `toml:"bounds" yaml:"bounds"`

	scope string
}

// Override is an [[override]] entry.
type Override struct {
	Function string   `toml:"function" yaml:"function"`
	Classes  []string `toml:"classes" yaml:"classes"`
	// Result is returned by the constant binder.
	Result any `toml:"result" yaml:"result"`
	// Next makes the constant impl append the next override's result.
	Next bool `toml:"next" yaml:"next"`
	// Impl names a host implementation for an Impls binder.
	Impl string `toml:"impl" yaml:"impl"`

	scope string
}

// Signature renders the override as written, e.g. "meet(Dog, Cat)".
func (o *Override) Signature() string {
	return fmt.Sprintf("%s(%s)", o.Function, strings.Join(o.Classes, ", "))
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// Format is a manifest encoding.
type Format int

const (
	TOML Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "toml"
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return TOML, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Parse validates and decodes one manifest document. Includes are not
// followed.
func Parse(data []byte, format Format) (*Manifest, error) {
	var generic map[string]any
	var m Manifest

	switch format {
	case TOML:
		if err := toml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("parse error: %w", err)
		}
		if err := Validate(generic); err != nil {
			return nil, err
		}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error: %w", err)
		}
	case YAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("parse error: %w", err)
		}
		if err := Validate(generic); err != nil {
			return nil, err
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse error: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}

	m.stampScope()
	return &m, nil
}

// stampScope stamps every entry with the file namespace.
func (m *Manifest) stampScope() {
	for i := range m.Classes {
		m.Classes[i].scope = m.Namespace
	}
	for i := range m.Functions {
		m.Functions[i].scope = m.Namespace
	}
	for i := range m.Overrides {
		m.Overrides[i].scope = m.Namespace
	}
}

// Load reads the manifest at path and merges its includes. Included
// entries come first; compile keys set by the including file win.
func Load(path string) (*Manifest, error) {
	return load(path, make(map[string]bool))
}

func load(path string, visiting map[string]bool) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	if visiting[abs] {
		return nil, fmt.Errorf("%w: include cycle through %s", ErrInvalidManifest, abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	format, err := FormatOf(abs)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", abs, err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	m.Path = abs

	if len(m.Include) == 0 {
		return m, nil
	}

	merged := &Manifest{Namespace: m.Namespace, Include: m.Include, Compile: m.Compile, Path: abs}
	for _, inc := range m.Include {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(abs), inc)
		}
		sub, err := load(inc, visiting)
		if err != nil {
			return nil, err
		}
		merged.Compile.fill(sub.Compile)
		merged.Classes = append(merged.Classes, sub.Classes...)
		merged.Functions = append(merged.Functions, sub.Functions...)
		merged.Overrides = append(merged.Overrides, sub.Overrides...)
	}
	merged.Classes = append(merged.Classes, m.Classes...)
	merged.Functions = append(merged.Functions, m.Functions...)
	merged.Overrides = append(merged.Overrides, m.Overrides...)
	return merged, nil
}

// FindAndLoad walks up from startDir looking for one of DefaultNames,
// then loads it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range DefaultNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}
