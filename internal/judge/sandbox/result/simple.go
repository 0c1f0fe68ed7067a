package result

import "fmt"

// Simple is the coarse outcome of a TestResponse.
type Simple uint8

const (
	SimpleCorrect Simple = iota
	SimpleWrong
	SimpleInvalidProgram
)

func (s Simple) String() string {
	switch s {
	case SimpleCorrect:
		return "Correct"
	case SimpleWrong:
		return "Wrong"
	case SimpleInvalidProgram:
		return "InvalidProgram"
	default:
		return fmt.Sprintf("Simple(%d)", uint8(s))
	}
}

// MarshalText lets Simple render by name in JSON responses.
func (s Simple) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names MarshalText produces.
func (s *Simple) UnmarshalText(b []byte) error {
	for _, v := range []Simple{SimpleCorrect, SimpleWrong, SimpleInvalidProgram} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", b)
}

// DecodeSimple classifies an encoded verdict from its first byte only.
func DecodeSimple(s string) (Simple, error) {
	if s == "" {
		return 0, malformed("empty string")
	}
	switch s[0] {
	case tagCorrect:
		return SimpleCorrect, nil
	case tagWrong:
		return SimpleWrong, nil
	case tagInvalid:
		return SimpleInvalidProgram, nil
	default:
		return 0, malformed("unknown tag %q", s[0])
	}
}

// Classify is the coarse outcome of an already decoded response.
func Classify(r TestResponse) Simple {
	switch v := r.(type) {
	case Ok:
		if v.AllCorrect() {
			return SimpleCorrect
		}
		return SimpleWrong
	case *Ok:
		return Classify(*v)
	default:
		return SimpleInvalidProgram
	}
}
