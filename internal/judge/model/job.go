package model

import "judgebox/internal/judge/sandbox/language"

// Job is everything the sandbox needs to judge one stored submission.
type Job struct {
	SubmissionID int64
	ProblemID    int64
	Language     language.Language
	Code         string
	// TimeLimit is in milliseconds.
	TimeLimit    uint64
	Tests        string
	CustomJudger *string
}
