package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"judgebox/internal/judge/model"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox/command"
	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/observer"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/testcase"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/contextkey"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

// Sandbox is the part of the sandbox facade the service drives.
type Sandbox interface {
	Test(ctx context.Context, t *command.Test) (result.TestResponse, error)
	ValidateJudger(ctx context.Context, src string) (string, error)
	Versions() []string
}

// Guard serializes judge runs per submission.
type Guard interface {
	Acquire(ctx context.Context, submissionID int64) (func(), error)
}

// Service judges submissions and answers verdict queries.
type Service struct {
	sandbox    Sandbox
	repo       repository.SubmissionRepository
	guard      Guard
	metrics    observer.MetricsRecorder
	jobTimeout time.Duration
	maxCode    int
	now        func() time.Time
}

// Config holds service dependencies and settings.
type Config struct {
	Sandbox Sandbox
	Repo    repository.SubmissionRepository
	// Guard may be nil, in which case concurrent rejudges are not prevented.
	Guard      Guard
	Metrics    observer.MetricsRecorder
	JobTimeout time.Duration
	// MaxCodeBytes rejects larger sources before they reach the sandbox. Zero means no limit.
	MaxCodeBytes int
	Now          func() time.Time
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Sandbox == nil {
		return nil, fmt.Errorf("sandbox is required")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observer.Noop{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		sandbox:    cfg.Sandbox,
		repo:       cfg.Repo,
		guard:      cfg.Guard,
		metrics:    metrics,
		jobTimeout: cfg.JobTimeout,
		maxCode:    cfg.MaxCodeBytes,
		now:        now,
	}, nil
}

// Judge runs a stored submission and stores its verdict.
func (s *Service) Judge(ctx context.Context, submissionID int64) (*model.Verdict, error) {
	if submissionID <= 0 {
		return nil, appErr.ValidationError("submission_id", "must be positive")
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, strconv.FormatInt(submissionID, 10))

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx, submissionID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	job, err := s.repo.LoadJob(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	expected, err := testcase.Count(job.Tests)
	if err != nil {
		return nil, err
	}

	resp, err := s.run(ctx, &command.Test{
		Language:     job.Language,
		TimeLimit:    job.TimeLimit,
		Code:         job.Code,
		Tests:        job.Tests,
		CustomJudger: job.CustomJudger,
	})
	if err != nil {
		return nil, err
	}
	if ok, isOk := resp.(result.Ok); isOk && len(ok.Cases) != expected {
		return nil, appErr.Newf(appErr.JudgeSystemError,
			"while checking verdict: runner returned %d results for %d test cases", len(ok.Cases), expected)
	}

	verdict := model.NewVerdict(resp)
	judgedAt := s.now().UTC()
	if err := s.repo.SaveVerdict(ctx, submissionID, verdict.Encoded, judgedAt); err != nil {
		return nil, err
	}
	s.metrics.ObserveVerdict(ctx, outcomeLabel(verdict.Simple))
	logger.Info(ctx, "submission judged",
		zap.String("outcome", verdict.Simple.String()),
		zap.String("language", job.Language.ID()),
	)

	verdict.SubmissionID = submissionID
	verdict.JudgedAt = &judgedAt
	return verdict, nil
}

// RunAdHoc runs code against the request's tests without storing anything.
func (s *Service) RunAdHoc(ctx context.Context, req *model.TestRequest) (*model.Verdict, error) {
	if req == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("request is nil")
	}
	lang, err := language.Parse(req.Language)
	if err != nil {
		return nil, appErr.New(appErr.LanguageNotSupported).WithDetail("language", req.Language)
	}
	tests := req.Tests
	if len(req.Cases) > 0 {
		if tests != "" {
			return nil, appErr.New(appErr.ValidationFailed).WithMessage("set either tests or cases, not both")
		}
		if tests, err = testcase.Format(req.Cases); err != nil {
			return nil, err
		}
	}
	if _, err := testcase.Count(tests); err != nil {
		return nil, err
	}

	resp, err := s.run(ctx, &command.Test{
		Language:     lang,
		TimeLimit:    req.TimeLimit,
		Code:         req.Code,
		Tests:        tests,
		CustomJudger: req.CustomJudger,
	})
	if err != nil {
		return nil, err
	}
	return model.NewVerdict(resp), nil
}

// ValidateJudger asks the runner whether judger source is usable.
func (s *Service) ValidateJudger(ctx context.Context, src string) (model.JudgerValidation, error) {
	msg, err := s.sandbox.ValidateJudger(ctx, src)
	if err != nil {
		return model.JudgerValidation{}, err
	}
	return model.JudgerValidation{Valid: msg == "", Message: msg}, nil
}

// Languages lists the supported languages with their installed versions.
func (s *Service) Languages() []model.LanguageInfo {
	versions := s.sandbox.Versions()
	out := make([]model.LanguageInfo, 0, language.Count)
	for _, l := range language.All() {
		info := model.LanguageInfo{Ordinal: l, ID: l.ID(), Name: l.String()}
		if int(l) < len(versions) {
			info.Version = versions[l]
		}
		out = append(out, info)
	}
	return out
}

// GetVerdict decodes the stored verdict of a submission.
func (s *Service) GetVerdict(ctx context.Context, submissionID int64) (*model.Verdict, error) {
	encoded, judgedAt, err := s.repo.GetVerdict(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	resp, err := result.Decode(encoded)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.VerdictMalformed).WithDetail("submission_id", submissionID)
	}
	verdict := model.NewVerdict(resp)
	verdict.SubmissionID = submissionID
	if !judgedAt.IsZero() {
		verdict.JudgedAt = &judgedAt
	}
	return verdict, nil
}

// ProblemSummary counts correct submissions and lists every coarse outcome.
func (s *Service) ProblemSummary(ctx context.Context, problemID int64) (*model.ProblemSummary, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problem_id", "must be positive")
	}
	correct, err := s.repo.CountCorrect(ctx, problemID)
	if err != nil {
		return nil, err
	}
	outcomes, err := s.repo.ListOutcomes(ctx, problemID)
	if err != nil {
		return nil, err
	}
	return &model.ProblemSummary{ProblemID: problemID, CorrectCount: correct, Outcomes: outcomes}, nil
}

func (s *Service) run(ctx context.Context, t *command.Test) (result.TestResponse, error) {
	if !t.Language.Valid() {
		return nil, appErr.New(appErr.LanguageNotSupported).WithDetail("language", int(t.Language))
	}
	if s.maxCode > 0 && len(t.Code) > s.maxCode {
		return nil, appErr.New(appErr.CodeTooLarge).
			WithMessagef("code is %d bytes, limit is %d", len(t.Code), s.maxCode)
	}
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}
	return s.sandbox.Test(ctx, t)
}

func outcomeLabel(s result.Simple) string {
	switch s {
	case result.SimpleCorrect:
		return "correct"
	case result.SimpleWrong:
		return "wrong"
	default:
		return "invalid_program"
	}
}
