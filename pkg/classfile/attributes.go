package classfile

import (
	"fmt"
)

// maxCodeLength is the JVMS limit on a method's code array.
const maxCodeLength = 65535

func parseAttributes(r *Reader, pool *Pool) (Attributes, error) {
	var a Attributes
	count, err := r.U16()
	if err != nil {
		return a, fmt.Errorf("reading attributes count: %w", err)
	}
	for i := 0; i < int(count); i++ {
		nameIndex, err := r.U16()
		if err != nil {
			return a, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		name, err := pool.Utf8(nameIndex)
		if err != nil {
			return a, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}
		length, err := r.U32()
		if err != nil {
			return a, fmt.Errorf("reading %s length: %w", name, err)
		}
		if int64(length) > int64(r.Remaining()) {
			return a, fmt.Errorf("%s: %w: length %d exceeds %d remaining bytes", name, ErrTruncatedInput, length, r.Remaining())
		}
		body, err := r.Sub(int(length))
		if err != nil {
			return a, fmt.Errorf("reading %s: %w", name, err)
		}
		a.Names = append(a.Names, name)
		if err := a.decode(name, body, pool); err != nil {
			return a, fmt.Errorf("parsing %s attribute: %w", name, err)
		}
	}
	return a, nil
}

// decode fills the typed slot for name, or stores the payload in Unknown.
func (a *Attributes) decode(name string, r *Reader, pool *Pool) error {
	var err error
	switch name {
	case "ConstantValue":
		var idx uint16
		if idx, err = r.U16(); err == nil {
			a.ConstantValue, err = pool.Loadable(idx, TagInteger, TagFloat, TagLong, TagDouble, TagString)
		}
	case "Code":
		a.Code, err = parseCode(r, pool)
	case "Exceptions":
		a.Exceptions, err = readClassIndices(r, pool)
	case "SourceFile":
		a.SourceFile, err = readUtf8Ref(r, pool)
	case "Signature":
		a.Signature, err = readUtf8Ref(r, pool)
	case "Synthetic":
		a.Synthetic = true
	case "Deprecated":
		a.Deprecated = true
	case "LineNumberTable":
		a.LineNumbers, err = readLineNumbers(r)
	case "LocalVariableTable":
		a.LocalVariables, err = readLocalVariables(r, pool)
	case "BootstrapMethods":
		a.BootstrapMethods, err = readBootstrapMethods(r, pool)
	default:
		if a.Unknown == nil {
			a.Unknown = make(map[string][]byte)
		}
		b, _ := r.Bytes(r.Remaining())
		a.Unknown[name] = append([]byte(nil), b...)
	}
	if err != nil {
		return err
	}
	if n := r.Remaining(); n != 0 {
		return fmt.Errorf("%d unexpected trailing bytes", n)
	}
	return nil
}

func parseCode(r *Reader, pool *Pool) (*CodeAttribute, error) {
	c := &CodeAttribute{}
	var err error
	if c.MaxStack, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading max_stack: %w", err)
	}
	if c.MaxLocals, err = r.U16(); err != nil {
		return nil, fmt.Errorf("reading max_locals: %w", err)
	}
	codeLength, err := r.U32()
	if err != nil {
		return nil, fmt.Errorf("reading code_length: %w", err)
	}
	if codeLength == 0 || codeLength > maxCodeLength {
		return nil, fmt.Errorf("code_length %d out of range", codeLength)
	}
	code, err := r.Bytes(int(codeLength))
	if err != nil {
		return nil, fmt.Errorf("reading code: %w", err)
	}
	c.Code = append([]byte(nil), code...)

	n, err := r.U16()
	if err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	c.ExceptionHandlers = make([]ExceptionHandler, n)
	for i := range c.ExceptionHandlers {
		h := &c.ExceptionHandlers[i]
		for _, p := range []*uint16{&h.StartPC, &h.EndPC, &h.HandlerPC, &h.CatchType} {
			if *p, err = r.U16(); err != nil {
				return nil, fmt.Errorf("reading exception handler %d: %w", i, err)
			}
		}
		if h.CatchType != 0 {
			if _, err := pool.ClassName(h.CatchType); err != nil {
				return nil, fmt.Errorf("resolving catch type of handler %d: %w", i, err)
			}
		}
	}

	if c.Attributes, err = parseAttributes(r, pool); err != nil {
		return nil, fmt.Errorf("parsing Code attributes: %w", err)
	}
	return c, nil
}

func readUtf8Ref(r *Reader, pool *Pool) (string, error) {
	idx, err := r.U16()
	if err != nil {
		return "", err
	}
	return pool.Utf8(idx)
}

func readClassIndices(r *Reader, pool *Pool) ([]uint16, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	out := make([]uint16, n)
	for i := range out {
		if out[i], err = r.U16(); err != nil {
			return nil, err
		}
		if _, err := pool.ClassName(out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readLineNumbers(r *Reader) ([]LineNumber, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	out := make([]LineNumber, n)
	for i := range out {
		if out[i].StartPC, err = r.U16(); err != nil {
			return nil, err
		}
		if out[i].Line, err = r.U16(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readLocalVariables(r *Reader, pool *Pool) ([]LocalVariable, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	out := make([]LocalVariable, n)
	for i := range out {
		lv := &out[i]
		if lv.StartPC, err = r.U16(); err != nil {
			return nil, err
		}
		if lv.Length, err = r.U16(); err != nil {
			return nil, err
		}
		if lv.Name, err = readUtf8Ref(r, pool); err != nil {
			return nil, err
		}
		if lv.Descriptor, err = readUtf8Ref(r, pool); err != nil {
			return nil, err
		}
		if lv.Index, err = r.U16(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readBootstrapMethods(r *Reader, pool *Pool) ([]BootstrapMethod, error) {
	n, err := r.U16()
	if err != nil {
		return nil, err
	}
	out := make([]BootstrapMethod, n)
	for i := range out {
		bm := &out[i]
		if bm.MethodRef, err = r.U16(); err != nil {
			return nil, err
		}
		if _, err := pool.expect(bm.MethodRef, TagMethodHandle); err != nil {
			return nil, fmt.Errorf("bootstrap method %d: %w", i, err)
		}
		argc, err := r.U16()
		if err != nil {
			return nil, err
		}
		bm.Args = make([]uint16, argc)
		for j := range bm.Args {
			if bm.Args[j], err = r.U16(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
