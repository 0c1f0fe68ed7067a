package command

import (
	"errors"
	"fmt"
	"sort"

	"judgebox/internal/judge/sandbox/result"

	"github.com/fxamacker/cbor/v2"
)

// ErrUnknownVariant is returned when a response map carries an unexpected tag.
var ErrUnknownVariant = errors.New("unknown response variant")

const (
	variantOk             = "Ok"
	variantInvalidProgram = "InvalidProgram"
	variantErr            = "Err"
)

type wireCase struct {
	Kind        string `cbor:"kind"`
	MemoryUsage uint64 `cbor:"memory_usage,omitempty"`
	Time        uint64 `cbor:"time"`
}

// variant splits an externally tagged map into its single tag and payload.
func variant(b []byte) (string, cbor.RawMessage, error) {
	var m map[string]cbor.RawMessage
	if err := decMode.Unmarshal(b, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", nil, fmt.Errorf("expected exactly one variant, got %v", keys)
	}
	var tag string
	for k := range m {
		tag = k
	}
	return tag, m[tag], nil
}

// DecodeTestResponse parses the runner's answer to a Test command.
func DecodeTestResponse(b []byte) (result.TestResponse, error) {
	tag, payload, err := variant(b)
	if err != nil {
		return nil, fmt.Errorf("decode test response: %w", err)
	}
	switch tag {
	case variantOk:
		var cases []wireCase
		if err := decMode.Unmarshal(payload, &cases); err != nil {
			return nil, fmt.Errorf("decode test response cases: %w", err)
		}
		out := make([]result.CaseResult, 0, len(cases))
		for i, c := range cases {
			kind, ok := result.KindFromName(c.Kind)
			if !ok {
				return nil, fmt.Errorf("decode test response: case %d: unknown kind %q", i, c.Kind)
			}
			out = append(out, result.CaseResult{Kind: kind, MemoryUsage: c.MemoryUsage, Time: c.Time})
		}
		return result.Ok{Cases: out}, nil
	case variantInvalidProgram:
		var reason string
		if err := decMode.Unmarshal(payload, &reason); err != nil {
			return nil, fmt.Errorf("decode invalid program reason: %w", err)
		}
		return result.InvalidProgram{Reason: reason}, nil
	default:
		return nil, fmt.Errorf("decode test response: %w %q", ErrUnknownVariant, tag)
	}
}

// DecodeVersions parses the runner's answer to a Versions command.
func DecodeVersions(b []byte) ([]string, error) {
	var versions []string
	if err := decMode.Unmarshal(b, &versions); err != nil {
		return nil, fmt.Errorf("decode versions: %w", err)
	}
	return versions, nil
}

// DecodeJudgerValidation parses the answer to ValidateJudger. An empty message means the judger loaded.
func DecodeJudgerValidation(b []byte) (string, error) {
	tag, payload, err := variant(b)
	if err != nil {
		return "", fmt.Errorf("decode judger validation: %w", err)
	}
	switch tag {
	case variantOk:
		return "", nil
	case variantErr:
		var msg string
		if err := decMode.Unmarshal(payload, &msg); err != nil {
			return "", fmt.Errorf("decode judger validation message: %w", err)
		}
		if msg == "" {
			msg = "judger rejected without a message"
		}
		return msg, nil
	default:
		return "", fmt.Errorf("decode judger validation: %w %q", ErrUnknownVariant, tag)
	}
}

// The encoders below produce what the in-image runner writes to stdout.
// Test doubles of the container engine use them to answer commands.

// EncodeTestResponse serializes r as the runner would.
func EncodeTestResponse(r result.TestResponse) ([]byte, error) {
	switch v := r.(type) {
	case result.Ok:
		cases := make([]wireCase, 0, len(v.Cases))
		for _, c := range v.Cases {
			cases = append(cases, wireCase{Kind: c.Kind.String(), MemoryUsage: c.MemoryUsage, Time: c.Time})
		}
		return encMode.Marshal(map[string]interface{}{variantOk: cases})
	case result.InvalidProgram:
		return encMode.Marshal(map[string]interface{}{variantInvalidProgram: v.Reason})
	default:
		return nil, fmt.Errorf("encode test response: unsupported type %T", r)
	}
}

// EncodeVersions serializes a version table as the runner would.
func EncodeVersions(versions []string) ([]byte, error) {
	return encMode.Marshal(versions)
}

// EncodeJudgerValidation serializes a ValidateJudger answer; "" means valid.
func EncodeJudgerValidation(msg string) ([]byte, error) {
	if msg == "" {
		return encMode.Marshal(map[string]interface{}{variantOk: nil})
	}
	return encMode.Marshal(map[string]interface{}{variantErr: msg})
}
