package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/enginetest"
	"judgebox/internal/judge/sandbox/result"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useFake(t *testing.T, fake *enginetest.Fake) *engine.Config {
	t.Helper()
	seen := &engine.Config{}
	prev := newEngine
	newEngine = func(cfg engine.Config) (engine.Engine, error) {
		*seen = cfg
		return fake, nil
	}
	t.Cleanup(func() { newEngine = prev })
	return seen
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDecodePrintsCases(t *testing.T) {
	out, err := execute(t, "decode", "ec,10,20;w,1,2;")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, want := range []string{"simple: Wrong", "case 1: Correct memory=10 time=20", "case 2: Wrong memory=1 time=2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}

	out, err = execute(t, "decode", "iexpected ';' before '}'")
	if err != nil {
		t.Fatalf("decode invalid program: %v", err)
	}
	if !strings.Contains(out, "simple: InvalidProgram") || !strings.Contains(out, "reason: expected ';' before '}'") {
		t.Fatalf("output = %q", out)
	}

	if _, err := execute(t, "decode", "x"); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestInspectCommandFile(t *testing.T) {
	judger := "def judge(i, o, e): return True"
	raw, err := command.Encode(command.Test{
		Language:     2,
		TimeLimit:    1500,
		Code:         "int main(){}",
		Tests:        "1\n--\n1\n===\n2\n--\n2",
		CustomJudger: &judger,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := execute(t, "inspect", writeFile(t, "command", string(raw)))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"command: Test", "language: cpp", "time_limit: 1500", "cases: 2", "custom_judger: true", "int main(){}"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}

	if _, err := execute(t, "inspect", writeFile(t, "garbage", "not cbor")); err == nil {
		t.Fatalf("expected error for garbage command file")
	}
}

func TestBuildPrintsHandle(t *testing.T) {
	useFake(t, &enginetest.Fake{BuildOutput: enginetest.Built("4f1c9e0a2b")})
	out, err := execute(t, "build", "--context", t.TempDir())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if strings.TrimSpace(out) != "4f1c9e0a2b" {
		t.Fatalf("output = %q", out)
	}
}

func TestVersionsTable(t *testing.T) {
	useFake(t, &enginetest.Fake{
		BuildOutput: enginetest.Built("4f1c9e0a2b"),
		Handler:     enginetest.Versions(enginetest.DefaultVersions...),
	})
	out, err := execute(t, "versions")
	if err != nil {
		t.Fatalf("versions: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(enginetest.DefaultVersions) {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[4], "rust") || !strings.HasSuffix(lines[4], "rustc 1.78.0") {
		t.Fatalf("last line = %q", lines[4])
	}
}

func TestTestCommandUsesConfigAndFlags(t *testing.T) {
	var got command.Test
	fake := &enginetest.Fake{
		BuildOutput: enginetest.Built("4f1c9e0a2b"),
		Handler: enginetest.Mux(func(_ context.Context, cmd command.Command) ([]byte, error) {
			tc, ok := cmd.(command.Test)
			if !ok {
				return nil, fmt.Errorf("unexpected %s", cmd.Name())
			}
			got = tc
			return command.EncodeTestResponse(result.Ok{Cases: []result.CaseResult{
				{Kind: result.Correct, MemoryUsage: 1024, Time: 12},
			}})
		}),
	}
	seen := useFake(t, fake)

	cfgPath := writeFile(t, "sandbox.yaml", "sandbox:\n  binary: podman\n  memoryMB: 256\n")
	code := writeFile(t, "main.py", "print(input())")
	tests := writeFile(t, "tests.txt", "7\n--\n7")

	out, err := execute(t, "--config", cfgPath, "--memory", "64", "--context", t.TempDir(),
		"test", "--language", "python3", "--time-limit", "2000", "--code", code, "--tests", tests)
	if err != nil {
		t.Fatalf("test: %v", err)
	}
	if strings.TrimSpace(out) != "oc,1024,12;" {
		t.Fatalf("output = %q", out)
	}
	if seen.Binary != "podman" {
		t.Fatalf("engine config = %+v", seen)
	}
	runs := fake.Runs()
	if len(runs) != 2 || runs[1].MemoryMB != 64 {
		t.Fatalf("runs = %+v", runs)
	}
	if got.TimeLimit != 2000 || got.Code != "print(input())" || got.CustomJudger != nil {
		t.Fatalf("test command = %+v", got)
	}
}

func TestTestCommandRejectsBadInput(t *testing.T) {
	useFake(t, &enginetest.Fake{BuildOutput: enginetest.Built("4f1c9e0a2b")})
	code := writeFile(t, "main.c", "int main(){}")

	if _, err := execute(t, "test", "--language", "cobol", "--code", code, "--tests", code); err == nil {
		t.Fatalf("expected error for unknown language")
	}
	if _, err := execute(t, "test", "--language", "c", "--code", code, "--tests", writeFile(t, "t", "no separator")); err == nil {
		t.Fatalf("expected error for malformed corpus")
	}
	if _, err := execute(t, "test", "--language", "c"); err == nil {
		t.Fatalf("expected error for missing required flags")
	}
}
