// Package driver runs a whole translation: it reads class containers,
// links their classes into one module and writes the outputs.
package driver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/archive"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/config"
	"github.com/daimatz/jvm2wasm/pkg/link"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

var log = commonlog.GetLogger("jvm2wasm.driver")

// IOError reports a failure of the environment: a file that cannot be
// read, created or renamed.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// ClassError reports a class entry that cannot be parsed or linked.
type ClassError struct {
	Entry string
	Err   error
}

func (e *ClassError) Error() string { return fmt.Sprintf("class %s: %v", e.Entry, e.Err) }

func (e *ClassError) Unwrap() error { return e.Err }

// Input is everything read from the configured containers.
type Input struct {
	Classes []*classfile.ClassFile
	// Entries names the container entry of each class.
	Entries []string
	// Resources are the non-class entries of the main input.
	Resources []archive.Entry
}

// Result summarizes a finished translation.
type Result struct {
	Module  *wasm.Module
	LinkMap *link.LinkMap
	Classes int
	Assets  int
}

// Read loads the main input and every library. Library resources are not
// carried into the assets archive.
func Read(cfg *config.Config) (*Input, error) {
	if cfg.Input.Path == "" {
		return nil, fmt.Errorf("%w: no input path", config.ErrInvalid)
	}
	in := &Input{}
	if err := in.add(cfg.Input.Path, true); err != nil {
		return nil, err
	}
	for _, lib := range cfg.Input.Libraries {
		if err := in.add(lib, false); err != nil {
			return nil, err
		}
	}
	log.Infof("read %d classes and %d resources", len(in.Classes), len(in.Resources))
	return in, nil
}

func (in *Input) add(path string, resources bool) error {
	entries, err := archive.ReadAll(path)
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	for _, e := range entries {
		if !e.IsClass() {
			if resources {
				in.Resources = append(in.Resources, e)
			}
			continue
		}
		cf, err := classfile.ParseBytes(e.Data)
		if err != nil {
			return &ClassError{Entry: e.Name, Err: err}
		}
		log.Debugf("parsed %s", e.Name)
		in.Classes = append(in.Classes, cf)
		in.Entries = append(in.Entries, e.Name)
	}
	return nil
}

// Link reads cfg's inputs and links their classes without writing
// anything.
func Link(cfg *config.Config) (*Input, *wasm.Module, *link.LinkMap, error) {
	in, err := Read(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	l := link.New(cfg.LinkOptions())
	for i, cf := range in.Classes {
		if err := l.Add(cf); err != nil {
			return nil, nil, nil, &ClassError{Entry: in.Entries[i], Err: err}
		}
	}
	if err := l.Declare(); err != nil {
		return nil, nil, nil, fmt.Errorf("link: %w", err)
	}
	if err := l.Emit(); err != nil {
		return nil, nil, nil, fmt.Errorf("link: %w", err)
	}
	return in, l.Module(), l.LinkMap(), nil
}

// Translate reads, links and writes according to cfg. Every output is
// written to a temporary file first; they are renamed into place only once
// all of them have been written.
func Translate(cfg *config.Config) (*Result, error) {
	in, mod, lm, err := Link(cfg)
	if err != nil {
		return nil, err
	}

	var out staging
	defer out.discard()

	res := &Result{Module: mod, LinkMap: lm, Classes: len(in.Classes)}
	if cfg.Output.Assets != "" && len(in.Resources) > 0 {
		data, n, err := assets(cfg.Output.Assets, in.Resources)
		if err != nil {
			return nil, err
		}
		if err := out.stage(cfg.Output.Assets, data); err != nil {
			return nil, err
		}
		res.Assets = n
	}
	if err := out.stage(cfg.Output.Module, mod.Encode()); err != nil {
		return nil, err
	}
	if cfg.Output.LinkMap != "" {
		data, err := lm.Marshal()
		if err != nil {
			return nil, fmt.Errorf("link map: %w", err)
		}
		if err := out.stage(cfg.Output.LinkMap, data); err != nil {
			return nil, err
		}
	}
	if err := out.commit(); err != nil {
		return nil, err
	}
	return res, nil
}

func assets(path string, resources []archive.Entry) ([]byte, int, error) {
	var buf bytes.Buffer
	w := archive.NewWriter(&buf)
	for _, e := range resources {
		if err := w.Add(e); err != nil {
			return nil, 0, &IOError{Path: path, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return nil, 0, &IOError{Path: path, Err: err}
	}
	return buf.Bytes(), w.Len(), nil
}

type staged struct {
	path, tmp string
}

// staging holds outputs written next to their destinations but not yet
// renamed.
type staging struct {
	files []staged
	dirs  []createdDir
}

// createdDir is a directory made by MkdirAll; top is the outermost
// directory the call created.
type createdDir struct {
	dir, top string
}

// stage writes data to a temporary file in path's directory, creating the
// directory if needed.
func (s *staging) stage(path string, data []byte) error {
	dir := filepath.Dir(path)
	if top := missingAncestor(dir); top != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			removeUpTo(dir, top)
			return &IOError{Path: path, Err: err}
		}
		s.dirs = append(s.dirs, createdDir{dir, top})
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return &IOError{Path: path, Err: errIsDir}
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return &IOError{Path: path, Err: err}
	}
	s.files = append(s.files, staged{path: path, tmp: f.Name()})
	if err := copyClose(f, data); err != nil {
		return &IOError{Path: path, Err: err}
	}
	return nil
}

// commit renames every staged file into place.
func (s *staging) commit() error {
	for i, f := range s.files {
		if err := os.Rename(f.tmp, f.path); err != nil {
			for _, done := range s.files[:i] {
				os.Remove(done.path)
			}
			s.files = s.files[i:]
			return &IOError{Path: f.path, Err: err}
		}
		log.Infof("wrote %s", f.path)
	}
	s.files, s.dirs = nil, nil
	return nil
}

// discard removes what an unfinished run left behind: temporary files, and
// directories created for them, innermost first.
func (s *staging) discard() {
	for _, f := range s.files {
		os.Remove(f.tmp)
	}
	for i := len(s.dirs) - 1; i >= 0; i-- {
		removeUpTo(s.dirs[i].dir, s.dirs[i].top)
	}
}

var errIsDir = errors.New("is a directory")

// missingAncestor returns the outermost directory on dir's path that does
// not exist yet, or "" if dir exists.
func missingAncestor(dir string) string {
	top := ""
	for {
		if _, err := os.Stat(dir); !errors.Is(err, os.ErrNotExist) {
			return top
		}
		top = dir
		parent := filepath.Dir(dir)
		if parent == dir {
			return top
		}
		dir = parent
	}
}

// removeUpTo removes dir and its parents up to top while they are empty.
func removeUpTo(dir, top string) {
	for os.Remove(dir) == nil && dir != top {
		dir = filepath.Dir(dir)
	}
}
func copyClose(f *os.File, data []byte) error {
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
