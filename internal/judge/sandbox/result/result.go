// Package result holds the verdict types and the compact text form verdicts are
// stored in.
//
// The text form is one tag byte followed by a payload:
//
//	o<case>;<case>;...   every case Correct
//	e<case>;<case>;...   at least one case not Correct
//	i<reason>            the program could not be run at all
//
// where each case is "<kind>,<memory>,<time>" and kind is one of c w r t m.
// Because the tag alone says whether everything passed, "all correct" can be
// filtered in SQL with a prefix match on the stored column.
package result

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the outcome of a single test case.
type Kind uint8

const (
	Correct Kind = iota
	Wrong
	RuntimeError
	TimeLimitExceeded
	MemoryLimitExceeded
)

var (
	kindChars = [...]byte{'c', 'w', 'r', 't', 'm'}
	kindNames = [...]string{"Correct", "Wrong", "RuntimeError", "TimeLimitExceeded", "MemoryLimitExceeded"}
)

// Char is the kind's byte in the text form.
func (k Kind) Char() byte {
	if int(k) < len(kindChars) {
		return kindChars[k]
	}
	return '?'
}

// String is the kind's variant name, which is also its name on the runner wire.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// KindFromChar maps a text-form byte back to a Kind.
func KindFromChar(c byte) (Kind, bool) {
	for i, kc := range kindChars {
		if kc == c {
			return Kind(i), true
		}
	}
	return 0, false
}

// KindFromName maps a variant name back to a Kind.
func KindFromName(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// CaseResult is the verdict for one test case. Time is in milliseconds.
type CaseResult struct {
	Kind        Kind   `json:"kind"`
	MemoryUsage uint64 `json:"memory_usage"`
	Time        uint64 `json:"time"`
}

// TestResponse is either Ok or InvalidProgram.
type TestResponse interface {
	isTestResponse()
}

// Ok lists case verdicts in test case order.
type Ok struct {
	Cases []CaseResult
}

// InvalidProgram means the submission never ran, e.g. it failed to compile.
type InvalidProgram struct {
	Reason string
}

func (Ok) isTestResponse()             {}
func (InvalidProgram) isTestResponse() {}

// AllCorrect reports whether every case is Correct. It is true for zero cases.
func (o Ok) AllCorrect() bool {
	for _, c := range o.Cases {
		if c.Kind != Correct {
			return false
		}
	}
	return true
}

const (
	tagCorrect byte = 'o'
	tagWrong   byte = 'e'
	tagInvalid byte = 'i'
)

// CorrectPrefix matches encoded verdicts where every case passed.
const CorrectPrefix = string(tagCorrect)

// ErrMalformed is wrapped by every decode error.
var ErrMalformed = errors.New("malformed verdict")

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// Encode renders r in the text form. It panics on a nil or foreign TestResponse
// and on a case Kind outside the verdict table.
func Encode(r TestResponse) string {
	switch v := r.(type) {
	case InvalidProgram:
		return string(tagInvalid) + v.Reason
	case *InvalidProgram:
		return Encode(*v)
	case Ok:
		buf := make([]byte, 1, 1+len(v.Cases)*12)
		allCorrect := true
		for _, c := range v.Cases {
			if int(c.Kind) >= len(kindChars) {
				panic(fmt.Sprintf("result: cannot encode case kind %d", c.Kind))
			}
			if c.Kind != Correct {
				allCorrect = false
			}
			buf = append(buf, c.Kind.Char(), ',')
			buf = strconv.AppendUint(buf, c.MemoryUsage, 10)
			buf = append(buf, ',')
			buf = strconv.AppendUint(buf, c.Time, 10)
			buf = append(buf, ';')
		}
		buf[0] = tagWrong
		if allCorrect {
			buf[0] = tagCorrect
		}
		return string(buf)
	case *Ok:
		return Encode(*v)
	default:
		panic(fmt.Sprintf("result: cannot encode %T", r))
	}
}

// Decode parses the text form. Besides syntax errors it rejects an o/e tag
// that disagrees with the cases it carries, since Encode never produces one.
func Decode(s string) (TestResponse, error) {
	if s == "" {
		return nil, malformed("empty string")
	}
	tag, rest := s[0], s[1:]
	switch tag {
	case tagInvalid:
		return InvalidProgram{Reason: rest}, nil
	case tagCorrect, tagWrong:
		cases, err := decodeCases(rest)
		if err != nil {
			return nil, err
		}
		ok := Ok{Cases: cases}
		if ok.AllCorrect() != (tag == tagCorrect) {
			return nil, malformed("tag %q disagrees with case kinds", tag)
		}
		return ok, nil
	default:
		return nil, malformed("unknown tag %q", tag)
	}
}

func decodeCases(s string) ([]CaseResult, error) {
	if s == "" {
		return []CaseResult{}, nil
	}
	if !strings.HasSuffix(s, ";") {
		return nil, malformed("unterminated case record")
	}
	records := strings.Split(strings.TrimSuffix(s, ";"), ";")
	cases := make([]CaseResult, 0, len(records))
	for i, rec := range records {
		c, err := decodeCase(rec)
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func decodeCase(rec string) (CaseResult, error) {
	if rec == "" {
		return CaseResult{}, malformed("empty case record")
	}
	fields := strings.Split(rec, ",")
	if len(fields) != 3 {
		return CaseResult{}, malformed("case record %q has %d fields, want 3", rec, len(fields))
	}
	if len(fields[0]) != 1 {
		return CaseResult{}, malformed("bad kind %q", fields[0])
	}
	kind, ok := KindFromChar(fields[0][0])
	if !ok {
		return CaseResult{}, malformed("unknown kind %q", fields[0])
	}
	mem, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return CaseResult{}, malformed("memory %q: %v", fields[1], err)
	}
	ms, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return CaseResult{}, malformed("time %q: %v", fields[2], err)
	}
	return CaseResult{Kind: kind, MemoryUsage: mem, Time: ms}, nil
}
