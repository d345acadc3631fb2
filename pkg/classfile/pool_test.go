package classfile

import (
	"errors"
	"testing"
)

// poolBytes builds constant_pool_count followed by raw entry bytes.
func poolBytes(count uint16, entries ...[]byte) []byte {
	b := []byte{byte(count >> 8), byte(count)}
	for _, e := range entries {
		b = append(b, e...)
	}
	return b
}

func TestAwaitForwardReference(t *testing.T) {
	// #1 Class -> #3, #2 Integer 7, #3 Utf8 "Fwd"
	data := poolBytes(4,
		[]byte{TagClass, 0, 3},
		[]byte{TagInteger, 0, 0, 0, 7},
		[]byte{TagUtf8, 0, 3, 'F', 'w', 'd'},
	)
	p, err := ReadPool(NewReader(data))
	if err != nil {
		t.Fatalf("ReadPool: %v", err)
	}
	if p.Len() != 4 {
		t.Errorf("Len: got %d, want 4", p.Len())
	}
	name, err := p.ClassName(1)
	if err != nil {
		t.Fatalf("ClassName(1): %v", err)
	}
	if name != "Fwd" {
		t.Errorf("ClassName(1): got %q, want %q", name, "Fwd")
	}
	e, err := p.Get(2)
	if err != nil {
		t.Fatalf("Get(2): %v", err)
	}
	if i, ok := e.(*ConstantInteger); !ok || i.Value != 7 {
		t.Errorf("Get(2): got %#v, want Integer 7", e)
	}
}

func TestAwaitDrivesParsing(t *testing.T) {
	data := poolBytes(3,
		[]byte{TagUtf8, 0, 1, 'a'},
		[]byte{TagUtf8, 0, 1, 'b'},
	)
	p := &Pool{entries: make([]ConstantPoolEntry, 1), count: 3, src: NewReader(data[2:])}

	if _, err := p.Get(2); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("Get before Await: got %v, want ErrInvalidIndex", err)
	}
	e, err := p.Await(2)
	if err != nil {
		t.Fatalf("Await(2): %v", err)
	}
	if u, ok := e.(*ConstantUtf8); !ok || u.Value != "b" {
		t.Errorf("Await(2): got %#v, want Utf8 b", e)
	}
	if _, err := p.Await(3); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Await past count: got %v, want ErrInvalidIndex", err)
	}
}

func TestWideEntriesTakeTwoSlots(t *testing.T) {
	data := poolBytes(5,
		[]byte{TagLong, 0, 0, 0, 0, 0, 0, 0, 9},
		[]byte{TagUtf8, 0, 1, 'x'},
		[]byte{TagClass, 0, 3},
	)
	p, err := ReadPool(NewReader(data))
	if err != nil {
		t.Fatalf("ReadPool: %v", err)
	}
	if _, err := p.Get(2); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Get(2): got %v, want ErrInvalidIndex for the second Long slot", err)
	}
	if name, err := p.ClassName(4); err != nil || name != "x" {
		t.Errorf("ClassName(4): got %q, %v, want %q", name, err, "x")
	}

	// A Long in the last slot overruns the declared count.
	bad := poolBytes(2, []byte{TagLong, 0, 0, 0, 0, 0, 0, 0, 9})
	if _, err := ReadPool(NewReader(bad)); err == nil {
		t.Error("expected overrun error, got nil")
	}
}

func TestInvalidReferences(t *testing.T) {
	tests := []struct {
		name    string
		entries [][]byte
	}{
		{"class to integer", [][]byte{{TagClass, 0, 2}, {TagInteger, 0, 0, 0, 1}}},
		{"class to itself", [][]byte{{TagClass, 0, 1}}},
		{"string out of range", [][]byte{{TagString, 0, 9}}},
		{"fieldref owner not class", [][]byte{{TagFieldref, 0, 2, 0, 2}, {TagUtf8, 0, 1, 'f'}}},
		{"method handle bad kind", [][]byte{{TagMethodHandle, 10, 0, 1}}},
		{"method handle kind mismatch", [][]byte{{TagMethodHandle, RefGetStatic, 0, 2}, {TagUtf8, 0, 1, 'f'}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := poolBytes(uint16(len(tt.entries)+1), tt.entries...)
			_, err := ReadPool(NewReader(data))
			if !errors.Is(err, ErrInvalidSymbolReference) {
				t.Errorf("got %v, want ErrInvalidSymbolReference", err)
			}
		})
	}
}

func TestUnknownTag(t *testing.T) {
	data := poolBytes(2, []byte{2, 0, 0})
	if _, err := ReadPool(NewReader(data)); err == nil {
		t.Error("expected error for tag 2, got nil")
	}
}

func TestInternRoundTrip(t *testing.T) {
	p := NewPool()
	name := p.Intern(&ConstantUtf8{Value: "Main"})
	cls := p.Intern(&ConstantClass{NameIndex: name})
	long := p.Intern(&ConstantLong{Value: -5})
	after := p.Intern(&ConstantInteger{Value: 3})
	if cls != 2 || long != 3 || after != 5 {
		t.Fatalf("indices: got %d %d %d, want 2 3 5", cls, long, after)
	}

	b, err := p.AppendTo(nil)
	if err != nil {
		t.Fatalf("AppendTo: %v", err)
	}
	q, err := ReadPool(NewReader(b))
	if err != nil {
		t.Fatalf("ReadPool: %v", err)
	}
	if q.Len() != p.Len() {
		t.Fatalf("Len: got %d, want %d", q.Len(), p.Len())
	}
	if n, _ := q.ClassName(cls); n != "Main" {
		t.Errorf("ClassName: got %q, want Main", n)
	}
	if e, _ := q.Get(long); e.(*ConstantLong).Value != -5 {
		t.Errorf("Long: got %v, want -5", e)
	}
}

func TestModifiedUTF8(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abc")},
		{"a\x00b", []byte{'a', 0xC0, 0x80, 'b'}},
		{"é", []byte{0xC3, 0xA9}},
		{"日", []byte{0xE6, 0x97, 0xA5}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
		{"x\xed\xa0\xbd", []byte{'x', 0xED, 0xA0, 0xBD}},
		{"\xed\xb8\x80y", []byte{0xED, 0xB8, 0x80, 'y'}},
		{"\xed\xb8\x80\xed\xa0\xbd", []byte{0xED, 0xB8, 0x80, 0xED, 0xA0, 0xBD}},
		{"\xed\xa0\xbda", []byte{0xED, 0xA0, 0xBD, 'a'}},
	}
	for _, tt := range tests {
		got := encodeModifiedUTF8(tt.in)
		if string(got) != string(tt.want) {
			t.Errorf("encode %q: got % X, want % X", tt.in, got, tt.want)
		}
		back, err := decodeModifiedUTF8(got)
		if err != nil {
			t.Errorf("decode %q: %v", tt.in, err)
			continue
		}
		if back != tt.in {
			t.Errorf("decode: got %q, want %q", back, tt.in)
		}
	}

	if _, err := decodeModifiedUTF8([]byte{0xC3}); err == nil {
		t.Error("expected error for truncated sequence, got nil")
	}
}

func TestReader(t *testing.T) {
	r := NewReader([]byte{0x01, 0xFF, 0xFE, 0x80, 0, 0, 0, 0x3F, 0x80, 0, 0})
	if v, _ := r.U8(); v != 1 {
		t.Errorf("U8: got %d, want 1", v)
	}
	if v, _ := r.I16(); v != -2 {
		t.Errorf("I16: got %d, want -2", v)
	}
	if v, _ := r.I32(); v != -0x80000000 {
		t.Errorf("I32: got %d, want MinInt32", v)
	}
	if v, _ := r.F32(); v != 1.0 {
		t.Errorf("F32: got %v, want 1", v)
	}
	if r.Offset() != 11 || r.Remaining() != 0 {
		t.Errorf("cursor: got offset %d remaining %d", r.Offset(), r.Remaining())
	}
	if _, err := r.U16(); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("U16 at end: got %v, want ErrTruncatedInput", err)
	}

	outer := NewReader([]byte{9, 8, 7, 6})
	_, _ = outer.U8()
	sub, err := outer.Sub(2)
	if err != nil {
		t.Fatalf("Sub: %v", err)
	}
	if sub.Offset() != 1 {
		t.Errorf("sub offset: got %d, want 1", sub.Offset())
	}
	if _, err := sub.U32(); !errors.Is(err, ErrTruncatedInput) {
		t.Errorf("sub U32: got %v, want ErrTruncatedInput", err)
	}
}

func TestDescriptors(t *testing.T) {
	tests := []struct {
		desc   string
		params string
		ret    string
		slots  int
	}{
		{"()V", "", "V", 0},
		{"(II)I", "I,I", "I", 2},
		{"(JDF)J", "J,D,F", "J", 5},
		{"([ILjava/lang/String;Z)[[D", "[I,Ljava/lang/String;,Z", "[[D", 3},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			d, err := ParseMethodDescriptor(tt.desc)
			if err != nil {
				t.Fatalf("ParseMethodDescriptor: %v", err)
			}
			var params string
			for i, p := range d.Params {
				if i > 0 {
					params += ","
				}
				params += p.String()
			}
			if params != tt.params {
				t.Errorf("params: got %q, want %q", params, tt.params)
			}
			if d.Return.String() != tt.ret {
				t.Errorf("return: got %q, want %q", d.Return.String(), tt.ret)
			}
			if d.ArgSlots() != tt.slots {
				t.Errorf("slots: got %d, want %d", d.ArgSlots(), tt.slots)
			}
		})
	}

	for _, bad := range []string{"", "I", "(I", "(V)V", "(L;)V", "()", "()II", "(Ljava/lang/String)V"} {
		if _, err := ParseMethodDescriptor(bad); err == nil {
			t.Errorf("ParseMethodDescriptor(%q): expected error", bad)
		}
	}
	if _, err := ParseFieldDescriptor("IJ"); err == nil {
		t.Error("ParseFieldDescriptor(\"IJ\"): expected error")
	}
}
