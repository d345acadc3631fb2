// Package config handles jvm2wasm.toml translation settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/daimatz/jvm2wasm/pkg/emit"
	"github.com/daimatz/jvm2wasm/pkg/link"
)

// FileName is the name Find looks for.
const FileName = "jvm2wasm.toml"

var ErrInvalid = errors.New("invalid configuration")

// Config represents a jvm2wasm.toml file.
type Config struct {
	Input    Input    `toml:"input"`
	Output   Output   `toml:"output"`
	Link     Link     `toml:"link"`
	Lowering Lowering `toml:"lowering"`
	Log      Log      `toml:"log"`

	// Dir is the directory relative paths are resolved against (set at load time).
	Dir string `toml:"-"`
}

// Input names the class container to translate and the libraries it
// links against.
type Input struct {
	Path      string   `toml:"path"`
	Libraries []string `toml:"libraries"`
}

// Output names the files a translation writes. Empty Assets or LinkMap
// disables that output.
type Output struct {
	Module  string `toml:"module"`
	Assets  string `toml:"assets"`
	LinkMap string `toml:"linkmap"`
}

type Link struct {
	Exports       string `toml:"exports"`
	ExportGlobals bool   `toml:"export_globals"`
	Unresolved    string `toml:"unresolved"`
	Start         bool   `toml:"start"`
}

type Lowering struct {
	MaxSparseSpan int `toml:"max_sparse_span"`
}

type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the settings used when no file is given.
func Default() *Config {
	return &Config{
		Output: Output{Module: "module.wasm", Assets: "assets.zip"},
		Link: Link{
			Exports:    string(link.ExportPublic),
			Unresolved: string(link.UnresolvedError),
			Start:      true,
		},
		Lowering: Lowering{MaxSparseSpan: emit.DefaultMaxSparseSpan},
	}
}

// Load parses the file at path over the defaults. Keys the Config does not
// know are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalid, path, strings.Join(keys, ", "))
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	c.resolve()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Find walks up from startDir looking for jvm2wasm.toml and returns its
// path, or "" if there is none.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) resolve() {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.Dir, *p)
		}
	}
	abs(&c.Input.Path)
	for i := range c.Input.Libraries {
		abs(&c.Input.Libraries[i])
	}
	abs(&c.Output.Module)
	abs(&c.Output.Assets)
	abs(&c.Output.LinkMap)
	abs(&c.Log.File)
}

// Validate checks the policy names and limits. The input path is checked by
// the driver, since flags may still supply it.
func (c *Config) Validate() error {
	switch link.ExportPolicy(c.Link.Exports) {
	case link.ExportPublic, link.ExportAll, link.ExportNone:
	default:
		return fmt.Errorf("%w: link.exports %q is not one of public, all, none", ErrInvalid, c.Link.Exports)
	}
	switch link.UnresolvedPolicy(c.Link.Unresolved) {
	case link.UnresolvedError, link.UnresolvedImport:
	default:
		return fmt.Errorf("%w: link.unresolved %q is not one of error, import", ErrInvalid, c.Link.Unresolved)
	}
	if c.Lowering.MaxSparseSpan < 0 {
		return fmt.Errorf("%w: lowering.max_sparse_span %d is negative", ErrInvalid, c.Lowering.MaxSparseSpan)
	}
	if c.Output.Module == "" {
		return fmt.Errorf("%w: output.module is empty", ErrInvalid)
	}
	return nil
}

// LinkOptions converts the [link] and [lowering] sections.
func (c *Config) LinkOptions() link.Options {
	return link.Options{
		Exports:       link.ExportPolicy(c.Link.Exports),
		ExportGlobals: c.Link.ExportGlobals,
		Unresolved:    link.UnresolvedPolicy(c.Link.Unresolved),
		Start:         c.Link.Start,
		Lowering:      emit.Options{MaxSparseSpan: c.Lowering.MaxSparseSpan},
	}
}
