package bytecode

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format renders one instruction in a javap-like form. Branch targets are
// printed as absolute offsets.
func Format(ins Instruction) string {
	name := Mnemonic(ins.Opcode)
	if ins.Wide {
		name = "wide " + name
	}
	abs := func(t int32) string { return strconv.Itoa(ins.Offset + int(t)) }

	switch o := ins.Op.(type) {
	case Const:
		switch ins.Opcode {
		case OpBipush, OpSipush:
			return name + " " + strconv.FormatInt(o.Int, 10)
		case OpLdc, OpLdcW, OpLdc2W:
			switch o.Kind {
			case Float, Double:
				return name + " " + strconv.FormatFloat(o.Float, 'g', -1, 64)
			}
			return name + " " + strconv.FormatInt(o.Int, 10)
		}
	case Load:
		if ins.Wide || ins.Opcode <= OpAload {
			return name + " " + strconv.Itoa(int(o.Index))
		}
	case Store:
		if ins.Wide || ins.Opcode <= OpAstore {
			return name + " " + strconv.Itoa(int(o.Index))
		}
	case Increment:
		return fmt.Sprintf("%s %d, %d", name, o.Index, o.Delta)
	case GetStatic:
		return name + " " + o.Field.String()
	case PutStatic:
		return name + " " + o.Field.String()
	case InvokeStatic:
		return name + " " + o.Method.String()
	case Goto:
		return name + " " + abs(o.Target)
	case If:
		return name + " " + abs(o.Target)
	case IfCmp:
		return name + " " + abs(o.Target)
	case IfNull:
		return name + " " + abs(o.Target)
	case TableSwitch:
		var sb strings.Builder
		sb.WriteString(name + " {")
		for i, t := range o.Targets {
			fmt.Fprintf(&sb, " %d: %s,", o.Low+int32(i), abs(t))
		}
		sb.WriteString(" default: " + abs(o.Default) + " }")
		return sb.String()
	case LookupSwitch:
		var sb strings.Builder
		sb.WriteString(name + " {")
		for i, t := range o.Targets {
			fmt.Fprintf(&sb, " %d: %s,", o.Keys[i], abs(t))
		}
		sb.WriteString(" default: " + abs(o.Default) + " }")
		return sb.String()
	}
	return name
}

// Disassemble writes one line per instruction.
func Disassemble(w io.Writer, instrs []Instruction) error {
	for _, ins := range instrs {
		if _, err := fmt.Fprintf(w, "%5d: %s\n", ins.Offset, Format(ins)); err != nil {
			return err
		}
	}
	return nil
}
