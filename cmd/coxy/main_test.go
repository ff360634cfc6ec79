package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/chazu/coxy/cache"
)

// setup writes a config and a script into a temp dir and returns the
// flags that point the CLI at the config.
func setup(t *testing.T, script string) (dir string, scriptPath string, args []string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath := filepath.Join(dir, "coxy.toml")
	if err := os.WriteFile(cfgPath, []byte("[cache]\npath = \"scripts.db\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	scriptPath = filepath.Join(dir, "main.cx")
	if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
		t.Fatal(err)
	}
	return dir, scriptPath, []string{"-config", cfgPath}
}

func runCLI(args []string, stdin string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunFile(t *testing.T) {
	_, script, args := setup(t, "print 1 + 2;\nprint \"a\" + \"b\";\n")

	code, out, errOut := runCLI(append(args, script), "")
	if code != exitOK {
		t.Fatalf("exit = %d, want 0 (stderr %q)", code, errOut)
	}
	if out != "3\nab\n" {
		t.Errorf("stdout = %q, want %q", out, "3\nab\n")
	}
}

func TestRunFile_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		code   int
		stderr string
	}{
		{"compile error", "print ;", exitCompileError, "[line 1] Error at ';': Expect expression."},
		{"runtime error", "print \"1\" + 2;", exitRuntimeError, "Operands must be two numbers or two strings"},
		{"undefined global", "print missing;", exitRuntimeError, "Undefined variable 'missing'."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, script, args := setup(t, tt.script)
			code, _, errOut := runCLI(append(args, script), "")
			if code != tt.code {
				t.Errorf("exit = %d, want %d", code, tt.code)
			}
			if !strings.Contains(errOut, tt.stderr) {
				t.Errorf("stderr = %q, want containing %q", errOut, tt.stderr)
			}
		})
	}
}

func TestRunFile_Missing(t *testing.T) {
	_, _, args := setup(t, "")
	code, _, _ := runCLI(append(args, "/nonexistent/script.cx"), "")
	if code != exitIOError {
		t.Errorf("exit = %d, want %d", code, exitIOError)
	}
}

func TestUsage(t *testing.T) {
	code, _, errOut := runCLI([]string{"a.cx", "b.cx"}, "")
	if code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(errOut, "Usage: coxy") {
		t.Errorf("stderr = %q, want usage text", errOut)
	}
}

func TestDisasm(t *testing.T) {
	_, script, args := setup(t, "fun f() { return 1; }\nprint f();\n")
	code, out, _ := runCLI(append(args, "-disasm", script), "")
	if code != exitOK {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, want := range []string{"== script ==", "== f ==", "OP_CLOSURE", "OP_RETURN"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\n1\n") {
		t.Error("-disasm should not run the script")
	}
}

func TestCompileAndRunImage(t *testing.T) {
	dir, script, args := setup(t, "var greeting = \"hi\";\nprint greeting;\n")
	image := filepath.Join(dir, "main.coxyc")

	code, out, errOut := runCLI(append(args, "-compile", image, script), "")
	if code != exitOK {
		t.Fatalf("compile exit = %d (stderr %q)", code, errOut)
	}
	if out != "" {
		t.Errorf("-compile should not run the script, got %q", out)
	}

	code, out, errOut = runCLI(append(args, "-image", image), "")
	if code != exitOK {
		t.Fatalf("image exit = %d (stderr %q)", code, errOut)
	}
	if out != "hi\n" {
		t.Errorf("stdout = %q, want %q", out, "hi\n")
	}
}

func TestCache(t *testing.T) {
	dir, script, args := setup(t, "print 40 + 2;\n")

	for i := 0; i < 2; i++ {
		code, out, errOut := runCLI(append(args, "-cache", script), "")
		if code != exitOK {
			t.Fatalf("run %d exit = %d (stderr %q)", i, code, errOut)
		}
		if out != "42\n" {
			t.Errorf("run %d stdout = %q, want 42", i, out)
		}
	}

	c, err := cache.Open(filepath.Join(dir, "scripts.db"))
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	defer c.Close()
	if _, ok, err := c.Get(cache.Key("print 40 + 2;\n")); err != nil || !ok {
		t.Errorf("script not cached: ok %v, err %v", ok, err)
	}
}

func TestREPL(t *testing.T) {
	_, _, args := setup(t, "")
	input := strings.Join([]string{
		"var a = 1;",
		"print a + \"x\";",
		"a = a + 1;",
		"print a;",
		"print ;",
		"print a * 10;",
	}, "\n")

	code, out, errOut := runCLI(args, input)
	if code != exitOK {
		t.Fatalf("exit = %d, want 0", code)
	}
	if out != "2\n20\n" {
		t.Errorf("stdout = %q, want %q", out, "2\n20\n")
	}
	if !strings.Contains(errOut, "Operands must be two numbers or two strings") {
		t.Errorf("stderr missing runtime error: %q", errOut)
	}
	if !strings.Contains(errOut, "Expect expression.") {
		t.Errorf("stderr missing compile error: %q", errOut)
	}
}

func TestREPLCommands(t *testing.T) {
	_, _, args := setup(t, "")
	code, out, _ := runCLI(args, ":stats\n:gc\n:bogus\n:quit\nprint 1;\n")
	if code != exitOK {
		t.Fatalf("exit = %d, want 0", code)
	}
	for _, want := range []string{"objects:", "collected", "unknown command :bogus"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.HasSuffix(out, "1\n") {
		t.Error(":quit should end the session")
	}
}

var expectPattern = regexp.MustCompile(`// expect: ?(.*)$`)

// TestExamples runs every script under examples/ and compares its output
// with the script's "// expect:" annotations.
func TestExamples(t *testing.T) {
	scripts, err := filepath.Glob(filepath.Join("..", "..", "examples", "*.cx"))
	if err != nil {
		t.Fatal(err)
	}
	if len(scripts) == 0 {
		t.Fatal("no example scripts found")
	}
	_, _, args := setup(t, "")

	for _, script := range scripts {
		t.Run(filepath.Base(script), func(t *testing.T) {
			data, err := os.ReadFile(script)
			if err != nil {
				t.Fatal(err)
			}
			var want strings.Builder
			for _, line := range strings.Split(string(data), "\n") {
				if m := expectPattern.FindStringSubmatch(line); m != nil {
					want.WriteString(m[1])
					want.WriteByte('\n')
				}
			}

			for _, extra := range [][]string{nil, {"-stress-gc"}} {
				code, out, errOut := runCLI(append(append(append([]string{}, args...), extra...), script), "")
				if code != exitOK {
					t.Fatalf("%v exit = %d (stderr %q)", extra, code, errOut)
				}
				if out != want.String() {
					t.Errorf("%v stdout = %q, want %q", extra, out, want.String())
				}
			}
		})
	}
}
