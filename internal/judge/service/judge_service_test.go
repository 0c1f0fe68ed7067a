package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"judgebox/internal/common/cache"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/testcase"
	"judgebox/internal/judge/service"
	appErr "judgebox/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

type fakeSandbox struct {
	mu       sync.Mutex
	calls    []command.Test
	resp     result.TestResponse
	err      error
	block    chan struct{}
	entered  chan struct{}
	judgeMsg string
}

func (f *fakeSandbox) Test(ctx context.Context, t *command.Test) (result.TestResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, *t)
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func (f *fakeSandbox) ValidateJudger(context.Context, string) (string, error) {
	return f.judgeMsg, nil
}

func (f *fakeSandbox) Versions() []string {
	return []string{"Python 3.12", "gcc 12", "g++ 12", "openjdk 17", "rustc 1.78"}
}

type fakeRepo struct {
	mu       sync.Mutex
	jobs     map[int64]*model.Job
	saved    map[int64]string
	savedAt  map[int64]time.Time
	correct  int64
	outcomes []model.Outcome
}

func newFakeRepo(jobs ...*model.Job) *fakeRepo {
	r := &fakeRepo{jobs: map[int64]*model.Job{}, saved: map[int64]string{}, savedAt: map[int64]time.Time{}}
	for _, j := range jobs {
		r.jobs[j.SubmissionID] = j
	}
	return r
}

func (r *fakeRepo) LoadJob(_ context.Context, id int64) (*model.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return job, nil
}

func (r *fakeRepo) SaveVerdict(_ context.Context, id int64, encoded string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[id] = encoded
	r.savedAt[id] = at
	return nil
}

func (r *fakeRepo) GetVerdict(_ context.Context, id int64) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	encoded, ok := r.saved[id]
	if !ok {
		return "", time.Time{}, appErr.New(appErr.SubmissionUnjudged)
	}
	return encoded, r.savedAt[id], nil
}

func (r *fakeRepo) CountCorrect(context.Context, int64) (int64, error) { return r.correct, nil }

func (r *fakeRepo) ListOutcomes(context.Context, int64) ([]model.Outcome, error) {
	return r.outcomes, nil
}

var fixedNow = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

func twoCaseJob() *model.Job {
	tests, _ := testcase.Format([]testcase.Case{{Input: "1", Output: "1"}, {Input: "2", Output: "2"}})
	return &model.Job{SubmissionID: 10, ProblemID: 1, Language: language.Python3, Code: "print(input())", TimeLimit: 1000, Tests: tests}
}

func newService(t *testing.T, sb *fakeSandbox, repo *fakeRepo, guard service.Guard) *service.Service {
	t.Helper()
	svc, err := service.NewService(service.Config{
		Sandbox: sb,
		Repo:    repo,
		Guard:   guard,
		Now:     func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestJudgeStoresEncodedVerdict(t *testing.T) {
	sb := &fakeSandbox{resp: result.Ok{Cases: []result.CaseResult{
		{Kind: result.Correct, Time: 15},
		{Kind: result.Wrong, Time: 20},
	}}}
	repo := newFakeRepo(twoCaseJob())
	svc := newService(t, sb, repo, nil)

	v, err := svc.Judge(context.Background(), 10)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if repo.saved[10] != "ec,0,15;w,0,20;" || !repo.savedAt[10].Equal(fixedNow) {
		t.Fatalf("saved %q at %v", repo.saved[10], repo.savedAt[10])
	}
	want := &model.Verdict{
		SubmissionID: 10,
		Status:       model.StatusOk,
		Cases:        []model.CaseView{{Kind: "Correct", Time: 15}, {Kind: "Wrong", Time: 20}},
		Encoded:      "ec,0,15;w,0,20;",
		Simple:       result.SimpleWrong,
		JudgedAt:     &fixedNow,
	}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if got := sb.calls[0]; got.Language != language.Python3 || got.TimeLimit != 1000 || got.CustomJudger != nil {
		t.Fatalf("unexpected sandbox call %+v", got)
	}
}

func TestJudgeStoresInvalidProgram(t *testing.T) {
	sb := &fakeSandbox{resp: result.InvalidProgram{Reason: "SyntaxError: invalid syntax"}}
	repo := newFakeRepo(twoCaseJob())
	v, err := newService(t, sb, repo, nil).Judge(context.Background(), 10)
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if repo.saved[10] != "iSyntaxError: invalid syntax" || v.Simple != result.SimpleInvalidProgram {
		t.Fatalf("saved %q, simple %v", repo.saved[10], v.Simple)
	}
}

func TestJudgeRejectsCaseCountMismatch(t *testing.T) {
	sb := &fakeSandbox{resp: result.Ok{Cases: []result.CaseResult{{Kind: result.Correct}}}}
	repo := newFakeRepo(twoCaseJob())
	_, err := newService(t, sb, repo, nil).Judge(context.Background(), 10)
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("Judge error = %v, want JudgeSystemError", err)
	}
	if _, saved := repo.saved[10]; saved {
		t.Fatalf("verdict must not be stored after a runner malfunction")
	}
}

func TestJudgeRejectsBadCorpus(t *testing.T) {
	job := twoCaseJob()
	job.Tests = "no separator here"
	sb := &fakeSandbox{}
	_, err := newService(t, sb, newFakeRepo(job), nil).Judge(context.Background(), 10)
	if !appErr.Is(err, appErr.TestCaseInvalid) {
		t.Fatalf("Judge error = %v, want TestCaseInvalid", err)
	}
	if len(sb.calls) != 0 {
		t.Fatalf("sandbox should not run for a bad corpus")
	}
}

func TestJudgePropagatesSystemError(t *testing.T) {
	sysErr := appErr.Chain(errors.New("exit status 125"), appErr.JudgeSystemError, "running container")
	sb := &fakeSandbox{err: sysErr}
	repo := newFakeRepo(twoCaseJob())
	_, err := newService(t, sb, repo, nil).Judge(context.Background(), 10)
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("Judge error = %v", err)
	}
	if len(repo.saved) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestJudgeGuardRejectsConcurrentRejudge(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer rc.Close()
	guard := repository.NewInflightGuard(rc, time.Minute)

	sb := &fakeSandbox{
		resp:    result.Ok{Cases: []result.CaseResult{{Kind: result.Correct}, {Kind: result.Correct}}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	svc := newService(t, sb, newFakeRepo(twoCaseJob()), guard)

	first := make(chan error, 1)
	go func() {
		_, err := svc.Judge(context.Background(), 10)
		first <- err
	}()
	<-sb.entered

	if _, err := svc.Judge(context.Background(), 10); !appErr.Is(err, appErr.JudgeQueueFull) {
		t.Fatalf("second Judge error = %v, want JudgeQueueFull", err)
	}
	close(sb.block)
	if err := <-first; err != nil {
		t.Fatalf("first Judge: %v", err)
	}
	if mr.Exists("judge:inflight:10") {
		t.Fatalf("guard not released")
	}
}

func TestJudgeUnknownSubmission(t *testing.T) {
	_, err := newService(t, &fakeSandbox{}, newFakeRepo(), nil).Judge(context.Background(), 404)
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("Judge error = %v", err)
	}
}

func TestRunAdHocWithStructuredCases(t *testing.T) {
	sb := &fakeSandbox{resp: result.Ok{Cases: []result.CaseResult{{Kind: result.Correct, Time: 3}}}}
	svc := newService(t, sb, newFakeRepo(), nil)
	v, err := svc.RunAdHoc(context.Background(), &model.TestRequest{
		Language:  "rust",
		TimeLimit: 2000,
		Code:      "fn main() {}",
		Cases:     []testcase.Case{{Input: "", Output: ""}},
	})
	if err != nil {
		t.Fatalf("RunAdHoc: %v", err)
	}
	if v.Encoded != "oc,0,3;" || v.Simple != result.SimpleCorrect {
		t.Fatalf("verdict = %+v", v)
	}
	if sb.calls[0].Tests != "\n--\n" || sb.calls[0].Language != language.Rust {
		t.Fatalf("sandbox call = %+v", sb.calls[0])
	}
}

func TestRunAdHocValidation(t *testing.T) {
	svc, err := service.NewService(service.Config{Sandbox: &fakeSandbox{}, Repo: newFakeRepo(), MaxCodeBytes: 8})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	tests := []struct {
		name string
		req  model.TestRequest
		code appErr.ErrorCode
	}{
		{"unknown language", model.TestRequest{Language: "cobol", TimeLimit: 1, Code: "x", Tests: "a\n--\nb"}, appErr.LanguageNotSupported},
		{"both corpora", model.TestRequest{Language: "c", TimeLimit: 1, Code: "x", Tests: "a\n--\nb", Cases: []testcase.Case{{}}}, appErr.ValidationFailed},
		{"bad corpus", model.TestRequest{Language: "c", TimeLimit: 1, Code: "x", Tests: "oops"}, appErr.TestCaseInvalid},
		{"code too large", model.TestRequest{Language: "c", TimeLimit: 1, Code: "int main(){}", Tests: "a\n--\nb"}, appErr.CodeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.RunAdHoc(context.Background(), &tt.req); !appErr.Is(err, tt.code) {
				t.Fatalf("RunAdHoc error = %v, want code %d", err, tt.code)
			}
		})
	}
}

func TestGetVerdictAndSummary(t *testing.T) {
	repo := newFakeRepo()
	repo.saved[3] = "oc,1024,15;"
	repo.savedAt[3] = fixedNow
	repo.correct = 1
	repo.outcomes = []model.Outcome{{SubmissionID: 3, Outcome: result.SimpleCorrect}}
	svc := newService(t, &fakeSandbox{}, repo, nil)

	v, err := svc.GetVerdict(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetVerdict: %v", err)
	}
	if v.Status != model.StatusOk || len(v.Cases) != 1 || v.Cases[0].MemoryUsage != 1024 {
		t.Fatalf("verdict = %+v", v)
	}

	repo.saved[4] = "ocorrupt"
	if _, err := svc.GetVerdict(context.Background(), 4); !appErr.Is(err, appErr.VerdictMalformed) {
		t.Fatalf("corrupt verdict error = %v", err)
	}

	summary, err := svc.ProblemSummary(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProblemSummary: %v", err)
	}
	if summary.CorrectCount != 1 || len(summary.Outcomes) != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestLanguagesAndJudger(t *testing.T) {
	svc := newService(t, &fakeSandbox{judgeMsg: "missing judge()"}, newFakeRepo(), nil)
	langs := svc.Languages()
	if len(langs) != language.Count || langs[4].ID != "rust" || langs[4].Version != "rustc 1.78" {
		t.Fatalf("languages = %+v", langs)
	}
	v, err := svc.ValidateJudger(context.Background(), "x")
	if err != nil || v.Valid || v.Message != "missing judge()" {
		t.Fatalf("ValidateJudger = %+v, %v", v, err)
	}
}
