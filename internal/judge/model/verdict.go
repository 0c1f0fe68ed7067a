package model

import (
	"time"

	"judgebox/internal/judge/sandbox/language"
	"judgebox/internal/judge/sandbox/result"
	"judgebox/internal/judge/sandbox/testcase"
)

// Verdict statuses in API responses.
const (
	StatusOk             = "ok"
	StatusInvalidProgram = "invalid_program"
)

// CaseView is one test case result as JSON.
type CaseView struct {
	Kind        string `json:"kind"`
	MemoryUsage uint64 `json:"memory_usage"`
	Time        uint64 `json:"time"`
}

// Verdict is the API view of a test response.
type Verdict struct {
	SubmissionID int64         `json:"submission_id,omitempty"`
	Status       string        `json:"status"`
	Cases        []CaseView    `json:"cases,omitempty"`
	Reason       string        `json:"reason,omitempty"`
	Encoded      string        `json:"encoded"`
	Simple       result.Simple `json:"simple"`
	JudgedAt     *time.Time    `json:"judged_at,omitempty"`
}

// NewVerdict builds the view of r.
func NewVerdict(r result.TestResponse) *Verdict {
	v := &Verdict{Encoded: result.Encode(r), Simple: result.Classify(r)}
	switch r := r.(type) {
	case result.Ok:
		v.Status = StatusOk
		v.Cases = caseViews(r.Cases)
	case *result.Ok:
		v.Status = StatusOk
		v.Cases = caseViews(r.Cases)
	case result.InvalidProgram:
		v.Status = StatusInvalidProgram
		v.Reason = r.Reason
	case *result.InvalidProgram:
		v.Status = StatusInvalidProgram
		v.Reason = r.Reason
	}
	return v
}

func caseViews(cases []result.CaseResult) []CaseView {
	out := make([]CaseView, len(cases))
	for i, c := range cases {
		out[i] = CaseView{Kind: c.Kind.String(), MemoryUsage: c.MemoryUsage, Time: c.Time}
	}
	return out
}

// TestRequest is the body of an ad-hoc run. Either Tests or Cases is set.
type TestRequest struct {
	Language     string          `json:"language" binding:"required"`
	TimeLimit    uint64          `json:"time_limit" binding:"required,min=1"`
	Code         string          `json:"code" binding:"required"`
	Tests        string          `json:"tests"`
	Cases        []testcase.Case `json:"cases"`
	CustomJudger *string         `json:"custom_judger"`
}

// ValidateJudgerRequest is the body of a judger check.
type ValidateJudgerRequest struct {
	Judger string `json:"judger" binding:"required"`
}

// JudgerValidation reports a judger check.
type JudgerValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// LanguageInfo describes an installed toolchain.
type LanguageInfo struct {
	Ordinal language.Language `json:"ordinal"`
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	Version string            `json:"version"`
}
