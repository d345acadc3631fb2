package native

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tliron/commonlog"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/link"
	"github.com/daimatz/jvm2wasm/pkg/wasm"
)

var log = commonlog.GetLogger("jvm2wasm.native")

// Instantiate builds one host module per imported class in rt, so that a
// module linked with unresolved imports can be instantiated afterwards.
// Every function import must have a native method; global imports are
// not supported.
func Instantiate(ctx context.Context, rt wazero.Runtime, imports []link.Symbol) error {
	var order []string
	builders := make(map[string]wazero.HostModuleBuilder)
	for _, sym := range imports {
		ref := classfile.MemberRef{Class: sym.Class, Name: sym.Name, Descriptor: sym.Descriptor}
		if sym.Kind != wasm.ExternFunc.String() {
			return fmt.Errorf("%w: global %s", ErrMissing, ref)
		}
		m, ok := Lookup(ref)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissing, ref)
		}
		params, results, err := valueTypes(m.Descriptor)
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}

		module := link.ImportModule(m.Class)
		b, ok := builders[module]
		if !ok {
			b = rt.NewHostModuleBuilder(module)
			builders[module] = b
			order = append(order, module)
		}
		fn := m.Fn
		b.NewFunctionBuilder().
			WithGoFunction(api.GoFunc(func(ctx context.Context, stack []uint64) {
				r, err := fn(stack[:len(params)])
				if err != nil {
					panic(err)
				}
				if len(results) > 0 {
					stack[0] = r
				}
			}), params, results).
			WithName(m.Name).
			Export(m.Name + m.Descriptor)
		log.Debugf("host function %s", m)
	}

	for _, module := range order {
		if _, err := builders[module].Instantiate(ctx); err != nil {
			return fmt.Errorf("instantiating host module %s: %w", module, err)
		}
		log.Infof("instantiated host module %s", module)
	}
	return nil
}

func valueTypes(descriptor string) (params, results []api.ValueType, err error) {
	d, err := classfile.ParseMethodDescriptor(descriptor)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range d.Params {
		params = append(params, valueType(bytecode.KindOf(p)))
	}
	if k := bytecode.KindOf(d.Return); k != bytecode.Void {
		results = append(results, valueType(k))
	}
	return params, results, nil
}

func valueType(k bytecode.Kind) api.ValueType {
	switch k {
	case bytecode.Long:
		return api.ValueTypeI64
	case bytecode.Float:
		return api.ValueTypeF32
	case bytecode.Double:
		return api.ValueTypeF64
	case bytecode.Ref:
		return api.ValueTypeExternref
	}
	return api.ValueTypeI32
}
