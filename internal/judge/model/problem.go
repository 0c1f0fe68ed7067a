package model

import "judgebox/internal/judge/sandbox/result"

// Outcome is the coarse verdict of one judged submission.
type Outcome struct {
	SubmissionID int64         `json:"submission_id"`
	Outcome      result.Simple `json:"outcome"`
}

// ProblemSummary aggregates the stored verdicts of a problem.
type ProblemSummary struct {
	ProblemID    int64     `json:"problem_id"`
	CorrectCount int64     `json:"correct_count"`
	Outcomes     []Outcome `json:"outcomes"`
}
