package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/daimatz/jvm2wasm/pkg/bytecode"
	"github.com/daimatz/jvm2wasm/pkg/classfile"
	"github.com/daimatz/jvm2wasm/pkg/config"
	"github.com/daimatz/jvm2wasm/pkg/driver"
	"github.com/daimatz/jvm2wasm/pkg/interp"
)

// count is a flag that counts its occurrences, for -v -v.
type count int

func (c *count) String() string { return strconv.Itoa(int(*c)) }

func (c *count) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if v {
		*c++
	}
	return nil
}

func (c *count) IsBoolFlag() bool { return true }

type list []string

func (l *list) String() string { return strings.Join(*l, ",") }

func (l *list) Set(s string) error {
	*l = append(*l, s)
	return nil
}

type options struct {
	config     string
	module     string
	assets     string
	linkMap    string
	exports    string
	unresolved string
	noStart    bool
	libs       list
	dump       bool
	run        string
	engine     string
	verbosity  count
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var o options
	fs := flag.NewFlagSet("jvm2wasm", flag.ContinueOnError)
	fs.StringVar(&o.config, "config", "", "Configuration file (default: jvm2wasm.toml in this or a parent directory)")
	fs.StringVar(&o.module, "o", "", "Output module")
	fs.StringVar(&o.assets, "assets", "", "Output archive for non-class resources")
	fs.StringVar(&o.linkMap, "linkmap", "", "Output CBOR link map")
	fs.StringVar(&o.exports, "exports", "", "Exported methods: public, all or none")
	fs.StringVar(&o.unresolved, "unresolved", "", "Unresolved members: error or import")
	fs.BoolVar(&o.noStart, "no-start", false, "Do not synthesize a start function for static initializers")
	fs.Var(&o.libs, "lib", "Library container linked with the input (repeatable)")
	fs.BoolVar(&o.dump, "dump", false, "Disassemble the input and exit")
	fs.StringVar(&o.run, "run", "", "Interpret a static method, e.g. 'com.example.Main.fib(I)I', with the remaining arguments")
	fs.StringVar(&o.engine, "engine", "interp", "Engine for -run: interp, or wasm to execute the linked module with wazero")
	fs.Var(&o.verbosity, "v", "Verbose logging (repeatable)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: jvm2wasm [options] [input] [args...]\n\n")
		fmt.Fprintf(fs.Output(), "Translates the static methods and fields of a jar, jmod, class directory or\nclass file into a WebAssembly module.\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(fs.Output(), "\nExamples:\n")
		fmt.Fprintf(fs.Output(), "  jvm2wasm -o app.wasm app.jar\n")
		fmt.Fprintf(fs.Output(), "  jvm2wasm -dump Main.class\n")
		fmt.Fprintf(fs.Output(), "  jvm2wasm -run 'Main.fib(I)I' classes/ 20\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(o.config)
	if err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) > 0 && (cfg.Input.Path == "" || o.run == "") {
		cfg.Input.Path, rest = rest[0], rest[1:]
	}
	if err := o.apply(cfg); err != nil {
		return err
	}

	commonlog.Initialize(cfg.Log.Verbosity+int(o.verbosity), cfg.Log.File)

	switch {
	case o.dump:
		in, err := driver.Read(cfg)
		if err != nil {
			return err
		}
		return driver.Dump(stdout, in.Classes)
	case o.run != "":
		return execute(cfg, o.engine, o.run, rest, stdout)
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected arguments %v", rest)
	}
	res, err := driver.Translate(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d classes, %d functions, %d globals",
		cfg.Output.Module, res.Classes, len(res.LinkMap.Functions), len(res.LinkMap.Globals))
	if res.Assets > 0 {
		fmt.Fprintf(stdout, ", %d resources in %s", res.Assets, cfg.Output.Assets)
	}
	fmt.Fprintln(stdout)
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		found, err := config.Find(".")
		if err != nil {
			return nil, err
		}
		if found == "" {
			return config.Default(), nil
		}
		path = found
	}
	return config.Load(path)
}

// apply overrides the file settings with the flags that were given.
func (o *options) apply(cfg *config.Config) error {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Output.Module, o.module)
	set(&cfg.Output.Assets, o.assets)
	set(&cfg.Output.LinkMap, o.linkMap)
	set(&cfg.Link.Exports, o.exports)
	set(&cfg.Link.Unresolved, o.unresolved)
	if o.noStart {
		cfg.Link.Start = false
	}
	cfg.Input.Libraries = append(cfg.Input.Libraries, o.libs...)
	return cfg.Validate()
}

// parseTarget splits 'pkg.Class.method(desc)' into an internal class name,
// a method name and a descriptor.
func parseTarget(s string) (class, name, desc string, err error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return "", "", "", fmt.Errorf("-run %q: missing method descriptor", s)
	}
	dot := strings.LastIndexByte(s[:paren], '.')
	if dot <= 0 || dot == paren-1 {
		return "", "", "", fmt.Errorf("-run %q: want Class.method(descriptor)", s)
	}
	class = strings.ReplaceAll(s[:dot], ".", "/")
	return class, s[dot+1 : paren], s[paren:], nil
}

func execute(cfg *config.Config, engine, target string, args []string, stdout io.Writer) error {
	class, name, desc, err := parseTarget(target)
	if err != nil {
		return err
	}
	values, err := interp.ParseArgs(desc, args)
	if err != nil {
		return err
	}

	var ret interp.Value
	switch engine {
	case "interp":
		in, err := driver.Read(cfg)
		if err != nil {
			return err
		}
		vm, err := interp.New(in.Classes)
		if err != nil {
			return err
		}
		if ret, err = vm.Invoke(class, name, desc, values...); err != nil {
			return err
		}
	case "wasm":
		ref := classfile.MemberRef{Class: class, Name: name, Descriptor: desc}
		if ret, err = driver.Execute(context.Background(), cfg, ref, values...); err != nil {
			return err
		}
	default:
		return fmt.Errorf("-engine %q is not one of interp, wasm", engine)
	}
	if ret.Kind != bytecode.Void {
		fmt.Fprintln(stdout, ret)
	}
	return nil
}
