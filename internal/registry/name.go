package registry

import (
	"fmt"
	"strings"
)

// MaxNameLen bounds process names.
const MaxNameLen = 128

// ValidateName reports whether name may be registered. Names are 1 to
// MaxNameLen characters of [A-Za-z0-9._-] without "..", which keeps them
// usable as log file names and URL query values.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > MaxNameLen:
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLen)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidName, name)
	}
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-' {
			continue
		}
		return fmt.Errorf("%w: %q has character %q, allowed [A-Za-z0-9._-]", ErrInvalidName, name, r)
	}
	return nil
}
