// Package command is the CBOR envelope exchanged with the runner baked into
// the sandbox image.
//
// A request is one map whose "command" key names the variant, with the
// variant's fields as siblings:
//
//	{"command": "Test", "language": 2, "time_limit": 1000, "code": "...", "tests": "...", "custom_judger": null}
//	{"command": "Versions"}
//	{"command": "ValidateJudger", "judger": "..."}
//
// Responses are externally tagged maps ({"Ok": ...}, {"InvalidProgram": ...},
// {"Err": ...}) except Versions, which answers with a bare array of strings.
package command

import (
	"errors"
	"fmt"

	"judgebox/internal/judge/sandbox/language"

	"github.com/fxamacker/cbor/v2"
)

// Command is one of Test, Versions or ValidateJudger.
type Command interface {
	// Name is the value of the "command" tag.
	Name() string
	isCommand()
}

// Test runs code against a test corpus. TimeLimit is per case, in milliseconds.
// Tests uses the corpus text format of package testcase.
type Test struct {
	Language     language.Language `cbor:"language"`
	TimeLimit    uint64            `cbor:"time_limit"`
	Code         string            `cbor:"code"`
	Tests        string            `cbor:"tests"`
	CustomJudger *string           `cbor:"custom_judger"`
}

// Versions asks for the toolchain version of every language, in ordinal order.
type Versions struct{}

// ValidateJudger asks the runner to load custom judger source without running it.
type ValidateJudger struct {
	Judger string `cbor:"judger"`
}

const (
	nameTest           = "Test"
	nameVersions       = "Versions"
	nameValidateJudger = "ValidateJudger"
)

func (Test) Name() string           { return nameTest }
func (Versions) Name() string       { return nameVersions }
func (ValidateJudger) Name() string { return nameValidateJudger }

func (Test) isCommand()           {}
func (Versions) isCommand()       {}
func (ValidateJudger) isCommand() {}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// ErrUnknownCommand is returned by DecodeCommand for an unrecognized tag.
var ErrUnknownCommand = errors.New("unknown command")

type testEnvelope struct {
	Command string `cbor:"command"`
	Test
}

type validateEnvelope struct {
	Command string `cbor:"command"`
	ValidateJudger
}

type tagOnly struct {
	Command string `cbor:"command"`
}

// Encode serializes c into the request envelope.
func Encode(c Command) ([]byte, error) {
	var payload interface{}
	switch v := c.(type) {
	case Test:
		payload = testEnvelope{Command: nameTest, Test: v}
	case *Test:
		payload = testEnvelope{Command: nameTest, Test: *v}
	case Versions, *Versions:
		payload = tagOnly{Command: nameVersions}
	case ValidateJudger:
		payload = validateEnvelope{Command: nameValidateJudger, ValidateJudger: v}
	case *ValidateJudger:
		payload = validateEnvelope{Command: nameValidateJudger, ValidateJudger: *v}
	default:
		return nil, fmt.Errorf("encode command: unsupported type %T", c)
	}
	b, err := encMode.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Name(), err)
	}
	return b, nil
}

// DecodeCommand is the runner-side inverse of Encode.
func DecodeCommand(b []byte) (Command, error) {
	var tag tagOnly
	if err := decMode.Unmarshal(b, &tag); err != nil {
		return nil, fmt.Errorf("decode command tag: %w", err)
	}
	switch tag.Command {
	case nameTest:
		var env testEnvelope
		if err := decMode.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("decode Test command: %w", err)
		}
		return env.Test, nil
	case nameVersions:
		return Versions{}, nil
	case nameValidateJudger:
		var env validateEnvelope
		if err := decMode.Unmarshal(b, &env); err != nil {
			return nil, fmt.Errorf("decode ValidateJudger command: %w", err)
		}
		return env.ValidateJudger, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, tag.Command)
	}
}
