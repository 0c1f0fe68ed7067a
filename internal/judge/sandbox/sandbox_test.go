package sandbox_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/engine"
	"judgebox/internal/judge/sandbox/enginetest"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/result"
	appErr "judgebox/pkg/errors"

	"github.com/google/go-cmp/cmp"
)

func newSandbox(t *testing.T, handler enginetest.Handler) (*sandbox.Sandbox, *enginetest.Fake) {
	t.Helper()
	fake := &enginetest.Fake{BuildOutput: enginetest.Built("5eed"), Handler: enginetest.Mux(handler)}
	sb, err := sandbox.New(context.Background(), sandbox.Config{TempRoot: t.TempDir(), Workers: 4}, fake)
	if err != nil {
		t.Fatalf("sandbox.New: %v", err)
	}
	return sb, fake
}

func respond(r result.TestResponse) enginetest.Handler {
	return func(context.Context, command.Command) ([]byte, error) {
		return command.EncodeTestResponse(r)
	}
}

func TestNewLoadsImageAndVersions(t *testing.T) {
	sb, _ := newSandbox(t, nil)
	if sb.Image() != "5eed" {
		t.Fatalf("Image() = %q", sb.Image())
	}
	if diff := cmp.Diff(enginetest.DefaultVersions, sb.Versions()); diff != "" {
		t.Fatalf("versions (-want +got):\n%s", diff)
	}
	if sb.Version(language.Rust) != "rustc 1.78.0" {
		t.Fatalf("Version(Rust) = %q", sb.Version(language.Rust))
	}
	v := sb.Versions()
	v[0] = "mutated"
	if sb.Version(language.Python3) == "mutated" {
		t.Fatalf("Versions() must return a copy")
	}
}

func TestNewFailsWhenBuildHasNoImageID(t *testing.T) {
	fake := &enginetest.Fake{BuildOutput: "Step 1/1 : FROM scratch\nerror: something broke\n"}
	_, err := sandbox.New(context.Background(), sandbox.Config{TempRoot: t.TempDir()}, fake)
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("New error = %v, want JudgeSystemError", err)
	}
	if !strings.HasPrefix(err.Error(), "while building image") {
		t.Fatalf("error = %q", err.Error())
	}
	if len(fake.Runs()) != 0 {
		t.Fatalf("no container should run after a failed build")
	}
}

func TestNewFailsOnShortVersionTable(t *testing.T) {
	fake := &enginetest.Fake{BuildOutput: enginetest.Built("5eed"), Handler: enginetest.Versions("Python 3.12")}
	_, err := sandbox.New(context.Background(), sandbox.Config{TempRoot: t.TempDir()}, fake)
	if !appErr.Is(err, appErr.JudgeSystemError) || !strings.Contains(err.Error(), "loading versions") {
		t.Fatalf("New error = %v", err)
	}
}

func TestTestScenarios(t *testing.T) {
	tests := []struct {
		name    string
		verdict result.TestResponse
		encoded string
	}{
		{
			name: "all correct",
			verdict: result.Ok{Cases: []result.CaseResult{
				{Kind: result.Correct, MemoryUsage: 0, Time: 15},
				{Kind: result.Correct, MemoryUsage: 0, Time: 20},
			}},
			encoded: "oc,0,15;c,0,20;",
		},
		{
			name: "one wrong",
			verdict: result.Ok{Cases: []result.CaseResult{
				{Kind: result.Correct, MemoryUsage: 0, Time: 15},
				{Kind: result.Wrong, MemoryUsage: 0, Time: 20},
			}},
			encoded: "ec,0,15;w,0,20;",
		},
		{
			name:    "does not compile",
			verdict: result.InvalidProgram{Reason: "syntax error"},
			encoded: "isyntax error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb, _ := newSandbox(t, respond(tt.verdict))
			got, err := sb.Test(context.Background(), &command.Test{
				Language:  language.Python3,
				TimeLimit: 1000,
				Code:      "print(input())",
				Tests:     "1\n--\n1\n===\n2\n--\n2",
			})
			if err != nil {
				t.Fatalf("Test: %v", err)
			}
			if diff := cmp.Diff(tt.verdict, got); diff != "" {
				t.Fatalf("verdict (-want +got):\n%s", diff)
			}
			if enc := result.Encode(got); enc != tt.encoded {
				t.Fatalf("Encode = %q, want %q", enc, tt.encoded)
			}
		})
	}
}

func TestConcurrentTestsAreIsolated(t *testing.T) {
	sb, fake := newSandbox(t, func(_ context.Context, cmd command.Command) ([]byte, error) {
		test := cmd.(command.Test)
		// Echo the code back so each caller can check it saw only its own command.
		return command.EncodeTestResponse(result.InvalidProgram{Reason: test.Code})
	})

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("print(%d)", i)
			got, err := sb.Test(context.Background(), &command.Test{Language: language.Python3, TimeLimit: 100, Code: code, Tests: "a\n--\nb"})
			if err != nil {
				errs <- err
				return
			}
			if reason := got.(result.InvalidProgram).Reason; reason != code {
				errs <- fmt.Errorf("call %d got %q", i, reason)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	seenDirs := map[string]bool{}
	seenNames := map[string]bool{}
	for i, spec := range fake.Runs() {
		dir := spec.Mounts[0].Source
		if seenDirs[dir] || seenNames[spec.Name] {
			t.Fatalf("run %d reused dir %s or container %s", i, dir, spec.Name)
		}
		seenDirs[dir] = true
		seenNames[spec.Name] = true
	}
	if len(seenDirs) != n+1 {
		t.Fatalf("distinct runs = %d, want %d", len(seenDirs), n+1)
	}
}

func TestContainerFailureIsSystemError(t *testing.T) {
	sb, _ := newSandbox(t, func(context.Context, command.Command) ([]byte, error) {
		return nil, &engine.ExitError{Code: 125, Stderr: "docker: invalid reference format"}
	})
	_, err := sb.Test(context.Background(), &command.Test{Language: language.C, TimeLimit: 1, Code: "int main(){}", Tests: "a\n--\nb"})
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("Test error = %v, want JudgeSystemError", err)
	}
	want := "while testing submission: while running container: got bad status 125. stderr: docker: invalid reference format"
	if err.Error() != want {
		t.Fatalf("error = %q\nwant    %q", err.Error(), want)
	}
}

func TestGarbageResponseIsSystemError(t *testing.T) {
	sb, _ := newSandbox(t, func(context.Context, command.Command) ([]byte, error) {
		return []byte("Traceback (most recent call last):"), nil
	})
	_, err := sb.Test(context.Background(), &command.Test{Language: language.Java, Code: "class A {}"})
	if !appErr.Is(err, appErr.JudgeSystemError) || !strings.Contains(err.Error(), "decoding response") {
		t.Fatalf("Test error = %v", err)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	sb, fake := newSandbox(t, nil)
	_, err := sb.Test(context.Background(), &command.Test{Language: language.Language(9)})
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("Test error = %v, want LanguageNotSupported", err)
	}
	if len(fake.Runs()) != 1 {
		t.Fatalf("only the versions run should have happened")
	}
}

func TestCancelledCallerGetsContextError(t *testing.T) {
	release := make(chan struct{})
	sb, _ := newSandbox(t, func(ctx context.Context, _ command.Command) ([]byte, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return command.EncodeTestResponse(result.Ok{})
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := sb.Test(ctx, &command.Test{Language: language.Cpp, Code: "int main(){for(;;);}"})
	if !errors.Is(err, context.DeadlineExceeded) || !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("Test error = %v, want deadline exceeded as JudgeSystemError", err)
	}
}

func TestValidateJudger(t *testing.T) {
	sb, _ := newSandbox(t, func(_ context.Context, cmd command.Command) ([]byte, error) {
		v := cmd.(command.ValidateJudger)
		if strings.Contains(v.Judger, "def judge") {
			return command.EncodeJudgerValidation("")
		}
		return command.EncodeJudgerValidation("judge function is missing")
	})
	msg, err := sb.ValidateJudger(context.Background(), "def judge(a, b, c, d):\n    return True\n")
	if err != nil || msg != "" {
		t.Fatalf("valid judger = %q, %v", msg, err)
	}
	msg, err = sb.ValidateJudger(context.Background(), "print('hi')")
	if err != nil || msg != "judge function is missing" {
		t.Fatalf("invalid judger = %q, %v", msg, err)
	}
}
