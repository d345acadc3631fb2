// Package link assigns module indices to the static members of a set of
// classes and assembles their lowered methods into one module.
//
// Linking runs in two passes. Declare gives every static field a global
// and every static method a function index, and fixes imports, exports and
// the start function. Emit then lowers each method body, resolving symbols
// only through the tables built by Declare.
package link

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/emit"
	"github.com/daimatz/jvm2wasm/pkg/structure"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

var log = commonlog.GetLogger("jvm2wasm.link")

var (
	ErrDuplicateClass  = errors.New("duplicate class")
	ErrInvalidConstant = errors.New("constant value does not match field type")
	ErrPhase           = errors.New("linker used out of order")
)

// ExportPolicy selects which static methods are exported.
type ExportPolicy string

const (
	ExportPublic ExportPolicy = "public"
	ExportAll    ExportPolicy = "all"
	ExportNone   ExportPolicy = "none"
)

// UnresolvedPolicy selects what happens to references to members that no
// linked class defines.
type UnresolvedPolicy string

const (
	UnresolvedError  UnresolvedPolicy = "error"
	UnresolvedImport UnresolvedPolicy = "import"
)

type Options struct {
	Exports       ExportPolicy
	ExportGlobals bool
	Unresolved    UnresolvedPolicy
	// Start synthesizes a start function that runs every <clinit>.
	Start    bool
	Lowering emit.Options
}

// DefaultOptions exports public methods, rejects unresolved symbols and
// runs static initializers on instantiation.
func DefaultOptions() Options {
	return Options{Exports: ExportPublic, Unresolved: UnresolvedError, Start: true}
}

// NameAndType identifies a member within its class.
type NameAndType struct {
	Name, Descriptor string
}

// MethodError reports a method that failed to link.
type MethodError struct {
	Class, Name, Descriptor string
	Err                     error
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s.%s%s: %v", e.Class, e.Name, e.Descriptor, e.Err)
}

func (e *MethodError) Unwrap() error { return e.Err }

type class struct {
	cf      *classfile.ClassFile
	name    string
	super   string
	globals map[NameAndType]uint32
	funcs   map[NameAndType]uint32
}

type method struct {
	class *class
	info  *classfile.MethodInfo
	index uint32
}

type memberKey struct {
	kind wasm.ExternalKind
	ref  classfile.MemberRef
}

// Linker builds one module from classes added in order.
type Linker struct {
	opts     Options
	classes  []*class
	byName   map[string]*class
	mod      wasm.Module
	imports  map[memberKey]uint32
	importAt map[memberKey]int
	methods  []method
	clinits  []uint32
	start    *uint32
	exports  map[memberKey]string
	linkMap  *LinkMap

	// memberKeys parallels mod.Imports.
	memberKeys []memberKey

	declared, emitted bool
}

func New(opts Options) *Linker {
	if opts.Exports == "" {
		opts.Exports = ExportPublic
	}
	if opts.Unresolved == "" {
		opts.Unresolved = UnresolvedError
	}
	return &Linker{
		opts:     opts,
		byName:   make(map[string]*class),
		imports:  make(map[memberKey]uint32),
		importAt: make(map[memberKey]int),
		exports:  make(map[memberKey]string),
	}
}

// Add registers a class. Classes are laid out in the order they are added.
func (l *Linker) Add(cf *classfile.ClassFile) error {
	if l.declared {
		return fmt.Errorf("%w: Add after Declare", ErrPhase)
	}
	name, err := cf.ClassName()
	if err != nil {
		return err
	}
	if _, ok := l.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateClass, name)
	}
	c := &class{
		cf:      cf,
		name:    name,
		super:   cf.SuperClassName(),
		globals: make(map[NameAndType]uint32),
		funcs:   make(map[NameAndType]uint32),
	}
	l.classes = append(l.classes, c)
	l.byName[name] = c
	return nil
}

// Module returns the module built so far.
func (l *Linker) Module() *wasm.Module { return &l.mod }

// LinkMap returns the symbol table produced by Declare.
func (l *Linker) LinkMap() *LinkMap { return l.linkMap }

// Link declares and emits classes with opts.
func Link(classes []*classfile.ClassFile, opts Options) (*wasm.Module, *LinkMap, error) {
	l := New(opts)
	for _, cf := range classes {
		if err := l.Add(cf); err != nil {
			return nil, nil, err
		}
	}
	if err := l.Declare(); err != nil {
		return nil, nil, err
	}
	if err := l.Emit(); err != nil {
		return nil, nil, err
	}
	return l.Module(), l.LinkMap(), nil
}

// Declare runs the first pass.
func (l *Linker) Declare() error {
	if l.declared {
		return fmt.Errorf("%w: Declare called twice", ErrPhase)
	}
	l.declared = true

	if l.opts.Unresolved == UnresolvedImport {
		if err := l.scanImports(); err != nil {
			return err
		}
	}
	if err := l.declareGlobals(); err != nil {
		return err
	}
	if err := l.declareFunctions(); err != nil {
		return err
	}
	l.declareExports()
	if l.opts.Start && len(l.clinits) > 0 {
		idx := l.mod.ImportCount(wasm.ExternFunc) + uint32(len(l.mod.Functions))
		l.mod.Functions = append(l.mod.Functions, l.mod.TypeIndex(wasm.FuncType{}))
		l.start = &idx
		l.mod.Start = &idx
		log.Debugf("start function %d runs %d static initializers", idx, len(l.clinits))
	}
	l.linkMap = l.buildLinkMap()
	log.Infof("declared %d globals, %d functions, %d imports, %d exports",
		len(l.mod.Globals), len(l.mod.Functions), len(l.mod.Imports), len(l.mod.Exports))
	return nil
}

// Emit runs the second pass, lowering every declared method in index order.
func (l *Linker) Emit() error {
	if !l.declared || l.emitted {
		return fmt.Errorf("%w: Emit must follow Declare once", ErrPhase)
	}
	l.emitted = true
	for _, m := range l.methods {
		code, err := l.lower(m)
		if err != nil {
			return &MethodError{Class: m.class.name, Name: m.info.Name, Descriptor: m.info.Descriptor, Err: err}
		}
		l.mod.Codes = append(l.mod.Codes, code)
	}
	if l.start != nil {
		var w wasm.Writer
		for _, f := range l.clinits {
			w.Call(f)
		}
		w.End()
		l.mod.Codes = append(l.mod.Codes, wasm.Code{Body: w.Bytes()})
	}
	return nil
}

func (l *Linker) lower(m method) (wasm.Code, error) {
	instrs, err := bytecode.Decode(m.info.Code.Code, m.class.cf.ConstantPool)
	if err != nil {
		return wasm.Code{}, err
	}
	tree, err := structure.Structure(instrs)
	if err != nil {
		return wasm.Code{}, err
	}
	c := tree.Count()
	log.Debugf("%s.%s%s: %d instructions, %d loops, %d blocks, %d conditionals, %d switch targets",
		m.class.name, m.info.Name, m.info.Descriptor, len(instrs), c.Loops, c.Blocks, c.Conditionals, c.Wrappers)
	return emit.Function(m.info, instrs, tree, l, l.opts.Lowering)
}

func (l *Linker) declareGlobals() error {
	base := l.mod.ImportCount(wasm.ExternGlobal)
	for _, c := range l.classes {
		for i := range c.cf.Fields {
			f := &c.cf.Fields[i]
			if !f.IsStatic() {
				continue
			}
			g, err := global(c.name, f)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", c.name, f.Name, err)
			}
			c.globals[NameAndType{f.Name, f.Descriptor}] = base + uint32(len(l.mod.Globals))
			l.mod.Globals = append(l.mod.Globals, g)
		}
	}
	return nil
}

// global maps a static field to a global. A final field with a constant is
// immutable; every other field is mutable and starts at zero so that
// <clinit> can assign it.
func global(class string, f *classfile.FieldInfo) (wasm.Global, error) {
	t, err := classfile.ParseFieldDescriptor(f.Descriptor)
	if err != nil {
		return wasm.Global{}, err
	}
	k := bytecode.KindOf(t)
	vt := emit.ValType(k)
	cv := f.Attributes.ConstantValue
	g := wasm.Global{
		Type: wasm.GlobalType{ValType: vt, Mutable: !f.IsFinal() || cv == nil},
		Init: wasm.ZeroInit(vt),
	}
	if !f.IsFinal() || cv == nil {
		return g, nil
	}
	switch c := cv.(type) {
	case *classfile.ConstantInteger:
		if k == bytecode.Int {
			g.Init = wasm.I32Init(c.Value)
			return g, nil
		}
	case *classfile.ConstantLong:
		if k == bytecode.Long {
			g.Init = wasm.I64Init(c.Value)
			return g, nil
		}
	case *classfile.ConstantFloat:
		if k == bytecode.Float {
			g.Init = wasm.F32Init(c.Value)
			return g, nil
		}
	case *classfile.ConstantDouble:
		if k == bytecode.Double {
			g.Init = wasm.F64Init(c.Value)
			return g, nil
		}
	case *classfile.ConstantString:
		if k == bytecode.Ref {
			log.Noticef("%s.%s: string constant is not representable, initialized to null", class, f.Name)
			return g, nil
		}
	}
	return wasm.Global{}, fmt.Errorf("%w: %s constant for %s", ErrInvalidConstant,
		classfile.TagName(cv.Tag()), f.Descriptor)
}

func (l *Linker) declareFunctions() error {
	base := l.mod.ImportCount(wasm.ExternFunc)
	for _, c := range l.classes {
		for i := range c.cf.Methods {
			m := &c.cf.Methods[i]
			switch {
			case m.Code == nil:
				log.Debugf("%s.%s%s: no code, skipped", c.name, m.Name, m.Descriptor)
				continue
			case !m.IsStatic():
				log.Debugf("%s.%s%s: instance method, skipped", c.name, m.Name, m.Descriptor)
				continue
			}
			sig, err := emit.Signature(m.Descriptor)
			if err != nil {
				return &MethodError{Class: c.name, Name: m.Name, Descriptor: m.Descriptor, Err: err}
			}
			idx := base + uint32(len(l.mod.Functions))
			l.mod.Functions = append(l.mod.Functions, l.mod.TypeIndex(sig))
			c.funcs[NameAndType{m.Name, m.Descriptor}] = idx
			l.methods = append(l.methods, method{class: c, info: m, index: idx})
			if m.Name == "<clinit>" {
				l.clinits = append(l.clinits, idx)
			}
		}
	}
	return nil
}

// qualified turns an internal class name and member into an export name,
// e.g. "com.example.Calc.add".
func qualified(class, member string) string {
	return strings.ReplaceAll(class, "/", ".") + "." + member
}

func (l *Linker) exported(m method) bool {
	if m.info.Name == "<clinit>" {
		return false
	}
	switch l.opts.Exports {
	case ExportAll:
		return true
	case ExportPublic:
		return m.info.IsPublic()
	}
	return false
}

func (l *Linker) declareExports() {
	used := make(map[string]bool)
	add := func(kind wasm.ExternalKind, ref classfile.MemberRef, idx uint32, name string) {
		if used[name] {
			name += ref.Descriptor
		}
		for base, n := name, 2; used[name]; n++ {
			name = fmt.Sprintf("%s#%d", base, n)
		}
		used[name] = true
		l.mod.Exports = append(l.mod.Exports, wasm.Export{Name: name, Kind: kind, Index: idx})
		l.exports[memberKey{kind, ref}] = name
		log.Debugf("export %s %q = %d", kind, name, idx)
	}

	overloads := make(map[string]int)
	for _, m := range l.methods {
		if l.exported(m) {
			overloads[qualified(m.class.name, m.info.Name)]++
		}
	}
	for _, m := range l.methods {
		if !l.exported(m) {
			continue
		}
		ref := classfile.MemberRef{Class: m.class.name, Name: m.info.Name, Descriptor: m.info.Descriptor}
		name := qualified(m.class.name, m.info.Name)
		if overloads[name] > 1 {
			name += m.info.Descriptor
		}
		add(wasm.ExternFunc, ref, m.index, name)
	}

	if !l.opts.ExportGlobals {
		return
	}
	for _, c := range l.classes {
		for _, f := range c.cf.Fields {
			if !f.IsStatic() {
				continue
			}
			ref := classfile.MemberRef{Class: c.name, Name: f.Name, Descriptor: f.Descriptor}
			add(wasm.ExternGlobal, ref, c.globals[NameAndType{f.Name, f.Descriptor}], qualified(c.name, f.Name))
		}
	}
}
