// Package archive reads the entries of class containers and writes the
// archive of resources that are not classes.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("jvm2wasm.archive")

var ErrUnknownFormat = errors.New("not a jar, zip, jmod, directory or class file")

// jmodMagic precedes the zip data of a JDK jmod file.
const jmodMagic = "JM\x01\x00"

// Entry is one file of a container. Name uses forward slashes.
type Entry struct {
	Name     string
	Data     []byte
	Modified time.Time
}

// IsClass reports whether the entry holds a class file.
func (e Entry) IsClass() bool { return path.Ext(e.Name) == ".class" }

// Source lists the entries of one container.
type Source interface {
	Entries() ([]Entry, error)
}

// Open picks the source for p by looking at it: a directory, a class file,
// or a zip container (jar, zip or jmod).
func Open(p string) (Source, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return &DirSource{Root: p}, nil
	case strings.HasSuffix(p, ".class"):
		return &FileSource{Path: p}, nil
	}
	return &ZipSource{Path: p}, nil
}

// ReadAll opens p and returns its entries.
func ReadAll(p string) ([]Entry, error) {
	src, err := Open(p)
	if err != nil {
		return nil, err
	}
	return src.Entries()
}

// ZipSource reads a jar, zip or jmod file.
type ZipSource struct {
	Path string
}

func (s *ZipSource) Entries() ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("zip: reading %s: %w", s.Path, err)
	}
	if bytes.HasPrefix(data, []byte(jmodMagic)) {
		log.Debugf("%s: skipping jmod header", s.Path)
		data = data[len(jmodMagic):]
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownFormat, s.Path, err)
	}

	var entries []Entry
	for _, file := range zr.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("zip: opening %s: %w", file.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("zip: reading %s: %w", file.Name, err)
		}
		entries = append(entries, Entry{Name: file.Name, Data: b, Modified: file.Modified})
	}
	log.Infof("%s: %d entries", s.Path, len(entries))
	return entries, nil
}

// DirSource reads every file under Root in lexical order.
type DirSource struct {
	Root string
}

func (s *DirSource) Entries() ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(s.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("dir: reading %s: %w", p, err)
		}
		var mod time.Time
		if info, err := d.Info(); err == nil {
			mod = info.ModTime()
		}
		entries = append(entries, Entry{Name: filepath.ToSlash(rel), Data: data, Modified: mod})
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Infof("%s: %d files", s.Root, len(entries))
	return entries, nil
}

// FileSource reads a single class file.
type FileSource struct {
	Path string
}

func (s *FileSource) Entries() ([]Entry, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("class: reading %s: %w", s.Path, err)
	}
	return []Entry{{Name: filepath.Base(s.Path), Data: data}}, nil
}

// Writer writes entries to a zip archive.
type Writer struct {
	zw    *zip.Writer
	names map[string]bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{zw: zip.NewWriter(w), names: make(map[string]bool)}
}

// Add copies an entry into the archive. A name that was already written is
// skipped with a warning.
func (w *Writer) Add(e Entry) error {
	if w.names[e.Name] {
		log.Warningf("duplicate entry %s, keeping the first", e.Name)
		return nil
	}
	w.names[e.Name] = true
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: e.Modified})
	if err != nil {
		return fmt.Errorf("zip: adding %s: %w", e.Name, err)
	}
	if _, err := fw.Write(e.Data); err != nil {
		return fmt.Errorf("zip: writing %s: %w", e.Name, err)
	}
	return nil
}

// Len returns the number of entries written.
func (w *Writer) Len() int { return len(w.names) }

func (w *Writer) Close() error { return w.zw.Close() }
