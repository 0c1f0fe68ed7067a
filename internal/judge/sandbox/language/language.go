// Package language enumerates the runtimes the sandbox image ships.
//
// The integer value of a Language is persisted in submissions and sent to the
// in-image runner, so existing values must never be renumbered.
package language

import (
	"fmt"
	"strconv"
	"strings"
)

// Language is a runtime identified by a stable ordinal.
type Language int

const (
	Python3 Language = iota
	C
	Cpp
	Java
	Rust
)

var (
	ids   = [...]string{"python3", "c", "cpp", "java", "rust"}
	names = [...]string{"Python 3", "C", "C++", "Java", "Rust"}
)

// Count is the number of known languages. The Versions table has this many entries.
const Count = len(ids)

// All returns every language in ordinal order.
func All() []Language {
	out := make([]Language, Count)
	for i := range out {
		out[i] = Language(i)
	}
	return out
}

// Valid reports whether l is a known ordinal.
func (l Language) Valid() bool {
	return l >= 0 && int(l) < Count
}

// ID is the lowercase identifier used by the API and CLI.
func (l Language) ID() string {
	if !l.Valid() {
		return fmt.Sprintf("language(%d)", int(l))
	}
	return ids[l]
}

// String returns the display name.
func (l Language) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Language(%d)", int(l))
	}
	return names[l]
}

// Parse accepts an identifier ("cpp"), a display name ("C++") or an ordinal ("2").
func Parse(s string) (Language, error) {
	s = strings.TrimSpace(s)
	for i := range ids {
		if strings.EqualFold(s, ids[i]) || strings.EqualFold(s, names[i]) {
			return Language(i), nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if l := Language(n); l.Valid() {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown language %q", s)
}
