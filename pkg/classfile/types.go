package classfile

// Access flags
const (
	AccPublic    = 0x0001
	AccPrivate   = 0x0002
	AccProtected = 0x0004
	AccStatic    = 0x0008
	AccFinal     = 0x0010
	AccSuper     = 0x0020
	AccNative    = 0x0100
	AccInterface = 0x0200
	AccAbstract  = 0x0400
)

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	ConstantPool *Pool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []FieldInfo
	Methods      []MethodInfo
	Attributes   Attributes
}

// ClassName returns the internal name of this class, e.g. "com/example/Calc".
func (cf *ClassFile) ClassName() (string, error) {
	return cf.ConstantPool.ClassName(cf.ThisClass)
}

// SuperClassName returns the internal name of the super class, or "" for
// java/lang/Object.
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := cf.ConstantPool.ClassName(cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  Attributes
	Code        *CodeAttribute
}

func (m *MethodInfo) IsStatic() bool { return m.AccessFlags&AccStatic != 0 }
func (m *MethodInfo) IsPublic() bool { return m.AccessFlags&AccPublic != 0 }

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags uint16
	Name        string
	Descriptor  string
	Attributes  Attributes
}

func (f *FieldInfo) IsStatic() bool { return f.AccessFlags&AccStatic != 0 }
func (f *FieldInfo) IsFinal() bool  { return f.AccessFlags&AccFinal != 0 }
func (f *FieldInfo) IsPublic() bool { return f.AccessFlags&AccPublic != 0 }

// ExceptionHandler represents an entry in the exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	Attributes        Attributes
}

// LineNumber is one LineNumberTable entry.
type LineNumber struct {
	StartPC uint16
	Line    uint16
}

// LocalVariable is one LocalVariableTable entry.
type LocalVariable struct {
	StartPC    uint16
	Length     uint16
	Name       string
	Descriptor string
	Index      uint16
}

// BootstrapMethod is one BootstrapMethods entry.
type BootstrapMethod struct {
	MethodRef uint16
	Args      []uint16
}

// Attributes is the typed attribute bag shared by classes, fields, methods
// and Code attributes. Attributes without a typed slot are kept verbatim in
// Unknown.
type Attributes struct {
	// Names lists every attribute name in file order.
	Names []string

	ConstantValue    ConstantPoolEntry
	Code             *CodeAttribute
	Exceptions       []uint16
	SourceFile       string
	Signature        string
	Synthetic        bool
	Deprecated       bool
	LineNumbers      []LineNumber
	LocalVariables   []LocalVariable
	BootstrapMethods []BootstrapMethod

	Unknown map[string][]byte
}

// Has reports whether an attribute with the given name was present.
func (a *Attributes) Has(name string) bool {
	for _, n := range a.Names {
		if n == name {
			return true
		}
	}
	return false
}
