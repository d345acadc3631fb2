package wasm

// Instruction opcodes used by the emitter.
const (
	OpUnreachable = 0x00
	OpNop         = 0x01
	OpBlock       = 0x02
	OpLoop        = 0x03
	OpIf          = 0x04
	OpElse        = 0x05
	OpEnd         = 0x0B
	OpBr          = 0x0C
	OpBrIf        = 0x0D
	OpBrTable     = 0x0E
	OpReturn      = 0x0F
	OpCall        = 0x10
	OpDrop        = 0x1A
	OpSelect      = 0x1B

	OpLocalGet  = 0x20
	OpLocalSet  = 0x21
	OpLocalTee  = 0x22
	OpGlobalGet = 0x23
	OpGlobalSet = 0x24

	OpI32Const = 0x41
	OpI64Const = 0x42
	OpF32Const = 0x43
	OpF64Const = 0x44

	OpI32Eqz = 0x45
	OpI32Eq  = 0x46
	OpI32Ne  = 0x47
	OpI32LtS = 0x48
	OpI32GtS = 0x4A
	OpI32LeS = 0x4C
	OpI32GeS = 0x4E

	OpI64Eqz = 0x50
	OpI64Eq  = 0x51
	OpI64Ne  = 0x52
	OpI64LtS = 0x53
	OpI64GtS = 0x55
	OpI64LeS = 0x57
	OpI64GeS = 0x59

	OpF32Eq = 0x5B
	OpF32Ne = 0x5C
	OpF32Lt = 0x5D
	OpF32Gt = 0x5E
	OpF32Le = 0x5F
	OpF32Ge = 0x60

	OpF64Eq = 0x61
	OpF64Ne = 0x62
	OpF64Lt = 0x63
	OpF64Gt = 0x64
	OpF64Le = 0x65
	OpF64Ge = 0x66

	OpI32Add  = 0x6A
	OpI32Sub  = 0x6B
	OpI32Mul  = 0x6C
	OpI32DivS = 0x6D
	OpI32RemS = 0x6F
	OpI32And  = 0x71
	OpI32Or   = 0x72
	OpI32Xor  = 0x73
	OpI32Shl  = 0x74
	OpI32ShrS = 0x75
	OpI32ShrU = 0x76

	OpI64Add  = 0x7C
	OpI64Sub  = 0x7D
	OpI64Mul  = 0x7E
	OpI64DivS = 0x7F
	OpI64RemS = 0x81
	OpI64And  = 0x83
	OpI64Or   = 0x84
	OpI64Xor  = 0x85
	OpI64Shl  = 0x86
	OpI64ShrS = 0x87
	OpI64ShrU = 0x88

	OpF32Neg = 0x8C
	OpF32Add = 0x92
	OpF32Sub = 0x93
	OpF32Mul = 0x94
	OpF32Div = 0x95

	OpF64Neg = 0x9A
	OpF64Add = 0xA0
	OpF64Sub = 0xA1
	OpF64Mul = 0xA2
	OpF64Div = 0xA3

	OpI32WrapI64     = 0xA7
	OpI64ExtendI32S  = 0xAC
	OpI64ExtendI32U  = 0xAD
	OpF32ConvertI32S = 0xB2
	OpF32ConvertI64S = 0xB4
	OpF32DemoteF64   = 0xB6
	OpF64ConvertI32S = 0xB7
	OpF64ConvertI64S = 0xB9
	OpF64PromoteF32  = 0xBB
	OpI32Extend8S    = 0xC0
	OpI32Extend16S   = 0xC1

	OpRefNull   = 0xD0
	OpRefIsNull = 0xD1

	OpPrefixFC = 0xFC
)

// Sub-opcodes after OpPrefixFC.
const (
	TruncSatF32ToI32 = 0x00
	TruncSatF64ToI32 = 0x02
	TruncSatF32ToI64 = 0x04
	TruncSatF64ToI64 = 0x06
)
