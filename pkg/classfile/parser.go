package classfile

import (
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// ParseFile opens and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

// Parse reads a .class file from the given reader and returns a ClassFile.
func Parse(r io.Reader) (*ClassFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading class file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses one complete class file. Every byte must be consumed.
func ParseBytes(data []byte) (*ClassFile, error) {
	r := NewReader(data)
	cf := &ClassFile{}

	magic, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	if cf.MinorVersion, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if cf.MajorVersion, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	if cf.ConstantPool, err = ReadPool(r); err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	pool := cf.ConstantPool

	if cf.AccessFlags, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if cf.ThisClass, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if _, err := pool.ClassName(cf.ThisClass); err != nil {
		return nil, fmt.Errorf("resolving this_class: %w", err)
	}
	if cf.SuperClass, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}
	if cf.SuperClass != 0 {
		if _, err := pool.ClassName(cf.SuperClass); err != nil {
			return nil, fmt.Errorf("resolving super_class: %w", err)
		}
	}

	interfacesCount, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := range cf.Interfaces {
		if cf.Interfaces[i], err = r.U16(); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
		if _, err := pool.ClassName(cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("resolving interface %d: %w", i, err)
		}
	}

	if cf.Fields, err = parseFields(r, pool); err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}
	if cf.Methods, err = parseMethods(r, pool); err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}
	if cf.Attributes, err = parseAttributes(r, pool); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	if n := r.Remaining(); n != 0 {
		return nil, fmt.Errorf("%d trailing bytes after class attributes", n)
	}
	return cf, nil
}

// member holds the fields shared by field_info and method_info.
type member struct {
	access     uint16
	name       string
	descriptor string
	attrs      Attributes
}

func parseMember(r *Reader, pool *Pool) (member, error) {
	var m member
	var err error
	if m.access, err = r.U16(); err != nil {
		return m, fmt.Errorf("reading access flags: %w", err)
	}
	nameIndex, err := r.U16()
	if err != nil {
		return m, fmt.Errorf("reading name index: %w", err)
	}
	descIndex, err := r.U16()
	if err != nil {
		return m, fmt.Errorf("reading descriptor index: %w", err)
	}
	if m.name, err = pool.Utf8(nameIndex); err != nil {
		return m, fmt.Errorf("resolving name: %w", err)
	}
	if m.descriptor, err = pool.Utf8(descIndex); err != nil {
		return m, fmt.Errorf("resolving descriptor: %w", err)
	}
	if m.attrs, err = parseAttributes(r, pool); err != nil {
		return m, fmt.Errorf("parsing attributes of %s: %w", m.name, err)
	}
	return m, nil
}

func parseFields(r *Reader, pool *Pool) ([]FieldInfo, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	fields := make([]FieldInfo, count)
	for i := range fields {
		m, err := parseMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		if _, err := ParseFieldDescriptor(m.descriptor); err != nil {
			return nil, fmt.Errorf("field %s: %w", m.name, err)
		}
		fields[i] = FieldInfo{
			AccessFlags: m.access,
			Name:        m.name,
			Descriptor:  m.descriptor,
			Attributes:  m.attrs,
		}
	}
	return fields, nil
}

func parseMethods(r *Reader, pool *Pool) ([]MethodInfo, error) {
	count, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	methods := make([]MethodInfo, count)
	for i := range methods {
		m, err := parseMember(r, pool)
		if err != nil {
			return nil, fmt.Errorf("method %d: %w", i, err)
		}
		if _, err := ParseMethodDescriptor(m.descriptor); err != nil {
			return nil, fmt.Errorf("method %s: %w", m.name, err)
		}
		methods[i] = MethodInfo{
			AccessFlags: m.access,
			Name:        m.name,
			Descriptor:  m.descriptor,
			Attributes:  m.attrs,
			Code:        m.attrs.Code,
		}
	}
	return methods, nil
}
