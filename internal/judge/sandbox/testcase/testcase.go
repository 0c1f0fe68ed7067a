// Package testcase handles the test corpus text the runner consumes: cases
// separated by "\n===\n", each case an input and expected output separated by "\n--\n".
package testcase

import (
	"strings"

	appErr "judgebox/pkg/errors"
)

const (
	CaseSeparator   = "\n===\n"
	OutputSeparator = "\n--\n"
)

// Case is one input with its expected output.
type Case struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Format joins cases into corpus text. A case whose text would split back
// differently, including a separator formed across a join, is rejected.
func Format(cases []Case) (string, error) {
	parts := make([]string, 0, len(cases))
	for i, c := range cases {
		for _, field := range []string{c.Input, c.Output} {
			if strings.Contains(field, CaseSeparator) || strings.Contains(field, OutputSeparator) {
				return "", lossyCase(i)
			}
		}
		parts = append(parts, c.Input+OutputSeparator+c.Output)
	}
	corpus := strings.Join(parts, CaseSeparator)
	if len(cases) == 0 {
		return corpus, nil
	}

	chunks := strings.Split(corpus, CaseSeparator)
	for i, c := range cases {
		if i >= len(chunks) {
			return "", lossyCase(i)
		}
		in, out, found := strings.Cut(chunks[i], OutputSeparator)
		if !found || in != c.Input || out != c.Output {
			return "", lossyCase(i)
		}
	}
	if len(chunks) != len(cases) {
		return "", lossyCase(len(cases) - 1)
	}
	return corpus, nil
}

func lossyCase(i int) error {
	return appErr.New(appErr.TestCaseInvalid).
		WithMessagef("test case %d contains or forms a reserved separator", i).
		WithDetail("case", i)
}

// Parse splits corpus text into cases.
func Parse(corpus string) ([]Case, error) {
	if strings.TrimSpace(corpus) == "" {
		return nil, appErr.New(appErr.TestCaseInvalid).WithMessage("test corpus is empty")
	}
	chunks := strings.Split(corpus, CaseSeparator)
	cases := make([]Case, 0, len(chunks))
	for i, chunk := range chunks {
		input, output, found := strings.Cut(chunk, OutputSeparator)
		if !found {
			return nil, appErr.New(appErr.TestCaseInvalid).
				WithMessagef("test case %d has no %q between input and output", i, strings.TrimSpace(OutputSeparator)).
				WithDetail("case", i)
		}
		cases = append(cases, Case{Input: input, Output: output})
	}
	return cases, nil
}

// Count returns the number of cases in corpus, validating it on the way.
func Count(corpus string) (int, error) {
	cases, err := Parse(corpus)
	if err != nil {
		return 0, err
	}
	return len(cases), nil
}
