package driver

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/config"
	"github.com/daimatz/jvm2wasm/pkg/interp"
	"github.com/daimatz/jvm2wasm/pkg/link"
	"github.com/daimatz/jvm2wasm/pkg/native"
)

// Execute links cfg's input in memory and calls one static method of the
// module with wazero. Every static method is exported and unresolved
// members become imports served by the native package, whatever cfg says.
// Static initializers have no export and cannot be called.
func Execute(ctx context.Context, cfg *config.Config, ref classfile.MemberRef, args ...interp.Value) (interp.Value, error) {
	d, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return interp.Value{}, err
	}
	if len(args) != len(d.Params) {
		return interp.Value{}, fmt.Errorf("%w: %s takes %d arguments, got %d", interp.ErrBadArguments, ref, len(d.Params), len(args))
	}
	for i, a := range args {
		if k := bytecode.KindOf(d.Params[i]); a.Kind != k {
			return interp.Value{}, fmt.Errorf("%w: argument %d of %s is %s, want %s", interp.ErrBadArguments, i, ref, a.Kind, k)
		}
	}

	c := *cfg
	c.Link.Exports = string(link.ExportAll)
	c.Link.Unresolved = string(link.UnresolvedImport)
	_, mod, lm, err := Link(&c)
	if err != nil {
		return interp.Value{}, err
	}
	sym, ok := lm.Function(ref.Class, ref.Name, ref.Descriptor)
	if !ok || sym.Export == "" {
		return interp.Value{}, fmt.Errorf("%w: %s", interp.ErrNoSuchMethod, ref)
	}

	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	if err := native.Instantiate(ctx, rt, lm.Imports); err != nil {
		return interp.Value{}, err
	}
	inst, err := rt.Instantiate(ctx, mod.Encode())
	if err != nil {
		return interp.Value{}, fmt.Errorf("instantiating module: %w", err)
	}
	fn := inst.ExportedFunction(sym.Export)
	if fn == nil {
		return interp.Value{}, fmt.Errorf("%w: %s", interp.ErrNoSuchMethod, ref)
	}
	log.Debugf("calling export %s", sym.Export)

	raw := make([]uint64, len(args))
	for i, a := range args {
		raw[i] = a.Raw()
	}
	res, err := fn.Call(ctx, raw...)
	if err != nil {
		return interp.Value{}, fmt.Errorf("%s: %w", ref, err)
	}
	k := bytecode.KindOf(d.Return)
	if k == bytecode.Void {
		return interp.VoidValue(), nil
	}
	return interp.RawValue(k, res[0]), nil
}
