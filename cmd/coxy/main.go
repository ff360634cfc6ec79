// coxy CLI - runs coxy scripts or starts a REPL
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/coxy/cache"
	"github.com/chazu/coxy/compiler"
	"github.com/chazu/coxy/config"
	"github.com/chazu/coxy/vm"
	"github.com/chazu/coxy/vm/dist"
)

// Exit codes follow the sysexits convention.
const (
	exitOK           = 0
	exitUsage        = 64
	exitCompileError = 65
	exitRuntimeError = 70
	exitIOError      = 74
)

var log = commonlog.GetLogger("coxy")

type options struct {
	configPath string
	verbosity  int
	trace      bool
	printCode  bool
	stressGC   bool
	logGC      bool
	disasm     bool
	compileOut string
	image      bool
	useCache   bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("coxy", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to coxy.toml (default: search upward from the current directory)")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (0-5)")
	fs.BoolVar(&opts.trace, "trace", false, "Log every instruction as it executes")
	fs.BoolVar(&opts.printCode, "print-code", false, "Log the disassembly of compiled code")
	fs.BoolVar(&opts.stressGC, "stress-gc", false, "Collect garbage at every safepoint")
	fs.BoolVar(&opts.logGC, "log-gc", false, "Log every garbage collection")
	fs.BoolVar(&opts.disasm, "disasm", false, "Print the disassembly and exit without running")
	fs.StringVar(&opts.compileOut, "compile", "", "Write the compiled image to this file and exit")
	fs.BoolVar(&opts.image, "image", false, "Treat the script argument as a compiled image")
	fs.BoolVar(&opts.useCache, "cache", false, "Cache compiled scripts in SQLite")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: coxy [options] [script]\n\n")
		fmt.Fprintf(stderr, "Runs a coxy script, or starts a REPL when no script is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  coxy                          # Start REPL\n")
		fmt.Fprintf(stderr, "  coxy hello.cx                 # Run a script\n")
		fmt.Fprintf(stderr, "  coxy -compile hello.coxyc hello.cx\n")
		fmt.Fprintf(stderr, "  coxy -image hello.coxyc       # Run a compiled image\n")
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitIOError
	}
	opts.apply(cfg)

	verbosity := opts.verbosity
	if cfg.Debug.Trace || cfg.Debug.PrintCode || cfg.GC.Log {
		verbosity = max(verbosity, 4)
	}
	commonlog.Configure(verbosity, nil)

	vmInst := vm.NewVMWithConfig(cfg.VMConfig())
	defer vmInst.Free()
	vmInst.SetOutput(stdout)
	vmInst.UseCompiler(compiler.Compile)
	log.Debugf("vm %s ready (compiler: %s)", vmInst.ID(), vmInst.CompilerName())

	if fs.NArg() == 0 {
		runREPL(vmInst, stdin, stdout, stderr)
		return exitOK
	}
	return runFile(vmInst, cfg, opts, fs.Arg(0), stdout, stderr)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return config.Default(), nil
	}
	return cfg, nil
}

// apply lets command-line flags switch on settings the file left off.
func (o options) apply(cfg *config.Config) {
	cfg.Debug.Trace = cfg.Debug.Trace || o.trace
	cfg.Debug.PrintCode = cfg.Debug.PrintCode || o.printCode
	cfg.GC.Stress = cfg.GC.Stress || o.stressGC
	cfg.GC.Log = cfg.GC.Log || o.logGC
	cfg.Cache.Enabled = cfg.Cache.Enabled || o.useCache
}

// ---------------------------------------------------------------------------
// Script runner
// ---------------------------------------------------------------------------

func runFile(vmInst *vm.VM, cfg *config.Config, opts options, path string, stdout, stderr io.Writer) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Could not read file %q: %v\n", path, err)
		return exitIOError
	}

	fn, err := load(vmInst, cfg, opts, data)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}

	if opts.disasm {
		fmt.Fprint(stdout, vm.DisassembleProgram(vmInst.Heap(), fn))
		return exitOK
	}

	if opts.compileOut != "" {
		image, err := dist.Marshal(vmInst.Heap(), fn)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return exitCompileError
		}
		if err := os.WriteFile(opts.compileOut, image, 0o644); err != nil {
			fmt.Fprintf(stderr, "Could not write %q: %v\n", opts.compileOut, err)
			return exitIOError
		}
		log.Infof("wrote %s (%s)", opts.compileOut, humanize.IBytes(uint64(len(image))))
		return exitOK
	}

	if err := vmInst.Run(fn); err != nil {
		fmt.Fprintln(stderr, err)
		return exitCode(err)
	}
	return exitOK
}

// load produces the script function from source, an image, or the cache.
func load(vmInst *vm.VM, cfg *config.Config, opts options, data []byte) (*vm.ObjFunction, error) {
	h := vmInst.Heap()
	if opts.image {
		return dist.Unmarshal(h, data)
	}

	source := string(data)
	if !cfg.Cache.Enabled {
		return vmInst.Compile(source)
	}

	c, err := cache.Open(cfg.CachePath())
	if err != nil {
		log.Warningf("cache disabled: %v", err)
		return vmInst.Compile(source)
	}
	defer c.Close()

	key := cache.Key(source)
	if image, ok, err := c.Get(key); err != nil {
		log.Warningf("cache lookup: %v", err)
	} else if ok {
		fn, err := dist.Unmarshal(h, image)
		if err == nil {
			return fn, nil
		}
		log.Warningf("discarding cached image: %v", err)
	}

	fn, err := vmInst.Compile(source)
	if err != nil {
		return nil, err
	}
	image, err := dist.Marshal(h, fn)
	if err != nil {
		log.Warningf("cache store: %v", err)
		return fn, nil
	}
	if err := c.Put(key, image); err != nil {
		log.Warningf("cache store: %v", err)
	}
	return fn, nil
}

// ---------------------------------------------------------------------------
// REPL
// ---------------------------------------------------------------------------

func runREPL(vmInst *vm.VM, stdin io.Reader, stdout, stderr io.Writer) {
	interactive := false
	if f, ok := stdin.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	scanner := bufio.NewScanner(stdin)
	for {
		if interactive {
			fmt.Fprint(stdout, "> ")
		}
		if !scanner.Scan() {
			if interactive {
				fmt.Fprintln(stdout)
			}
			return
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			if !handleREPLCommand(vmInst, line, stdout) {
				return
			}
			continue
		}

		// Errors are reported and the session continues with its globals.
		if _, err := vmInst.Interpret(line); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}
}

// handleREPLCommand runs a ':' command. It returns false to end the session.
func handleREPLCommand(vmInst *vm.VM, line string, out io.Writer) bool {
	switch strings.Fields(line)[0] {
	case ":quit", ":exit":
		return false
	case ":gc":
		before := vmInst.Heap().BytesAllocated()
		vmInst.Heap().Collect()
		fmt.Fprintf(out, "collected %s, %s in use\n",
			humanize.IBytes(uint64(max(before-vmInst.Heap().BytesAllocated(), 0))),
			humanize.IBytes(uint64(vmInst.Heap().BytesAllocated())))
	case ":stats":
		h := vmInst.Heap()
		stats := h.Stats()
		fmt.Fprintf(out, "objects:   %d\n", h.LiveObjects())
		fmt.Fprintf(out, "allocated: %s\n", humanize.IBytes(uint64(h.BytesAllocated())))
		fmt.Fprintf(out, "next gc:   %s\n", humanize.IBytes(uint64(h.NextGC())))
		fmt.Fprintf(out, "cycles:    %d (%d objects freed)\n", stats.Cycles, stats.ObjectsFreed)
	case ":help":
		fmt.Fprintln(out, ":gc     collect garbage now")
		fmt.Fprintln(out, ":stats  show heap statistics")
		fmt.Fprintln(out, ":quit   leave the REPL")
	default:
		fmt.Fprintf(out, "unknown command %s (try :help)\n", line)
	}
	return true
}

// exitCode maps an interpret result to the process exit status.
func exitCode(err error) int {
	var compileErr compiler.ErrorList
	var runtimeErr *vm.RuntimeError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &compileErr):
		return exitCompileError
	case errors.As(err, &runtimeErr):
		return exitRuntimeError
	default:
		return exitCompileError
	}
}
