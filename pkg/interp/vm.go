// Package interp executes the static subset of class files that the
// translator accepts. It gives the same answers a module built from the
// same classes should give, and backs the -run mode of the command.
package interp

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
)

var log = commonlog.GetLogger("jvm2wasm.interp")

// maxFrameDepth is the maximum number of nested method calls.
const maxFrameDepth = 1024

type member struct {
	name, descriptor string
}

type class struct {
	cf          *classfile.ClassFile
	name        string
	super       string
	statics     map[member]Value
	initialized bool
}

type method struct {
	class  *class
	info   *classfile.MethodInfo
	params []bytecode.Kind
	ret    bytecode.Kind
	instrs []bytecode.Instruction
	index  map[int]int
}

// VM is the virtual machine that executes Java bytecode.
type VM struct {
	classes    map[string]*class
	methods    map[*classfile.MethodInfo]*method
	frameDepth int
}

// New creates a VM over classes. Static fields are set up like the linker
// does; <clinit> runs when a class is first used.
func New(classes []*classfile.ClassFile) (*VM, error) {
	vm := &VM{
		classes: make(map[string]*class),
		methods: make(map[*classfile.MethodInfo]*method),
	}
	for _, cf := range classes {
		name, err := cf.ClassName()
		if err != nil {
			return nil, err
		}
		if _, ok := vm.classes[name]; ok {
			return nil, fmt.Errorf("duplicate class %s", name)
		}
		c := &class{cf: cf, name: name, super: cf.SuperClassName(), statics: make(map[member]Value)}
		for _, f := range cf.Fields {
			if !f.IsStatic() {
				continue
			}
			v, err := staticValue(&f)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, f.Name, err)
			}
			c.statics[member{f.Name, f.Descriptor}] = v
		}
		vm.classes[name] = c
	}
	return vm, nil
}

// staticValue is a final field's ConstantValue or the zero value.
func staticValue(f *classfile.FieldInfo) (Value, error) {
	t, err := classfile.ParseFieldDescriptor(f.Descriptor)
	if err != nil {
		return Value{}, err
	}
	k := bytecode.KindOf(t)
	if !f.IsFinal() || f.Attributes.ConstantValue == nil {
		return ZeroValue(k), nil
	}
	switch c := f.Attributes.ConstantValue.(type) {
	case *classfile.ConstantInteger:
		if k == bytecode.Int {
			return IntValue(c.Value), nil
		}
	case *classfile.ConstantLong:
		if k == bytecode.Long {
			return LongValue(c.Value), nil
		}
	case *classfile.ConstantFloat:
		if k == bytecode.Float {
			return FloatValue(c.Value), nil
		}
	case *classfile.ConstantDouble:
		if k == bytecode.Double {
			return DoubleValue(c.Value), nil
		}
	case *classfile.ConstantString:
		if k == bytecode.Ref {
			return NullValue(), nil
		}
	}
	return Value{}, fmt.Errorf("constant value does not match %s", f.Descriptor)
}

// Invoke runs a static method and returns its result, which is VoidValue
// for void methods.
func (vm *VM) Invoke(className, name, descriptor string, args ...Value) (ret Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			se, ok := r.(stackError)
			if !ok {
				panic(r)
			}
			ret, err = Value{}, fmt.Errorf("%w: %s", ErrMalformed, string(se))
		}
	}()
	vm.frameDepth = 0

	ref := classfile.MemberRef{Class: className, Name: name, Descriptor: descriptor}
	m, err := vm.resolveMethod(ref)
	if err != nil {
		return Value{}, err
	}
	if len(args) != len(m.params) {
		return Value{}, fmt.Errorf("%w: %s takes %d arguments, got %d", ErrBadArguments, ref, len(m.params), len(args))
	}
	for i, a := range args {
		if a.Kind != m.params[i] {
			return Value{}, fmt.Errorf("%w: argument %d of %s is %s, want %s", ErrBadArguments, i, ref, a.Kind, m.params[i])
		}
	}
	if err := vm.initClass(m.class); err != nil {
		return Value{}, err
	}
	return vm.executeMethod(m, args)
}

// Static returns the current value of a static field, running the owning
// class's initializer first.
func (vm *VM) Static(className, name, descriptor string) (Value, error) {
	c, err := vm.resolveField(classfile.MemberRef{Class: className, Name: name, Descriptor: descriptor})
	if err != nil {
		return Value{}, err
	}
	if err := vm.initClass(c); err != nil {
		return Value{}, err
	}
	return c.statics[member{name, descriptor}], nil
}

// initClass runs the static initializers of c and its loaded superclasses,
// superclass first, once each.
func (vm *VM) initClass(c *class) error {
	if c.initialized {
		return nil
	}
	c.initialized = true
	if s, ok := vm.classes[c.super]; ok {
		if err := vm.initClass(s); err != nil {
			return err
		}
	}
	info := c.cf.FindMethod("<clinit>", "()V")
	if info == nil || info.Code == nil {
		return nil
	}
	log.Debugf("initializing %s", c.name)
	m, err := vm.load(c, info)
	if err != nil {
		return err
	}
	_, err = vm.executeMethod(m, nil)
	return err
}

func (vm *VM) resolveField(ref classfile.MemberRef) (*class, error) {
	for c := vm.classes[ref.Class]; c != nil; c = vm.classes[c.super] {
		if _, ok := c.statics[member{ref.Name, ref.Descriptor}]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: field %s", ErrUnresolved, ref)
}

func (vm *VM) resolveMethod(ref classfile.MemberRef) (*method, error) {
	if _, ok := vm.classes[ref.Class]; !ok {
		return nil, fmt.Errorf("%w: class %s", ErrUnresolved, ref.Class)
	}
	for c := vm.classes[ref.Class]; c != nil; c = vm.classes[c.super] {
		info := c.cf.FindMethod(ref.Name, ref.Descriptor)
		if info == nil {
			continue
		}
		if !info.IsStatic() || info.Code == nil {
			return nil, fmt.Errorf("%w: %s is not a static method with code", ErrNoSuchMethod, ref)
		}
		return vm.load(c, info)
	}
	return nil, fmt.Errorf("%w: %s", ErrNoSuchMethod, ref)
}

// load decodes a method once.
func (vm *VM) load(c *class, info *classfile.MethodInfo) (*method, error) {
	if m, ok := vm.methods[info]; ok {
		return m, nil
	}
	d, err := classfile.ParseMethodDescriptor(info.Descriptor)
	if err != nil {
		return nil, err
	}
	if len(info.Code.ExceptionHandlers) > 0 {
		return nil, fmt.Errorf("%w: %s.%s%s has exception handlers", ErrMalformed, c.name, info.Name, info.Descriptor)
	}
	instrs, err := bytecode.Decode(info.Code.Code, c.cf.ConstantPool)
	if err != nil {
		return nil, fmt.Errorf("%s.%s%s: %w", c.name, info.Name, info.Descriptor, err)
	}
	m := &method{class: c, info: info, ret: bytecode.KindOf(d.Return), instrs: instrs, index: make(map[int]int, len(instrs))}
	for _, p := range d.Params {
		m.params = append(m.params, bytecode.KindOf(p))
	}
	for i, ins := range instrs {
		m.index[ins.Offset] = i
	}
	vm.methods[info] = m
	return m, nil
}

// executeMethod executes a method with the given arguments and returns its return value.
func (vm *VM) executeMethod(m *method, args []Value) (Value, error) {
	vm.frameDepth++
	if vm.frameDepth > maxFrameDepth {
		return Value{}, fmt.Errorf("%w: frame depth exceeded %d", ErrStackOverflow, maxFrameDepth)
	}
	defer func() { vm.frameDepth-- }()

	frame := NewFrame(m.info.Code.MaxLocals, m.info.Code.MaxStack)

	// long and double arguments take two slots
	slot := 0
	for _, arg := range args {
		frame.SetLocal(slot, arg)
		slot++
		if arg.Kind.Wide() {
			slot++
		}
	}

	for frame.PC < len(m.instrs) {
		ins := m.instrs[frame.PC]
		retVal, hasReturn, err := vm.executeInstruction(frame, m, ins)
		if err != nil {
			var je *JavaException
			if errors.As(err, &je) || errors.Is(err, ErrStackOverflow) {
				return Value{}, err
			}
			return Value{}, fmt.Errorf("%s.%s%s at %d: %w", m.class.name, m.info.Name, m.info.Descriptor, ins.Offset, err)
		}
		if hasReturn {
			if retVal.Kind != m.ret {
				return Value{}, fmt.Errorf("%w: %s.%s%s returns %s, want %s",
					ErrMalformed, m.class.name, m.info.Name, m.info.Descriptor, retVal.Kind, m.ret)
			}
			return retVal, nil
		}
	}
	return Value{}, fmt.Errorf("%w: %s.%s%s falls off the end of its code", ErrMalformed, m.class.name, m.info.Name, m.info.Descriptor)
}
