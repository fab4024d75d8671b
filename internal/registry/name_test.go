package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	for _, n := range []string{"a", "db", "unstable_process", "web-1.v2", strings.Repeat("x", MaxNameLen)} {
		assert.NoError(t, ValidateName(n), n)
	}
	for _, n := range []string{"", " web", "web ", "a b", "..", "a..b", "a/b", `a\b`, "hello*", "한글", strings.Repeat("x", MaxNameLen+1)} {
		assert.ErrorIs(t, ValidateName(n), ErrInvalidName, n)
	}
}

func TestAdd_UsesNameRule(t *testing.T) {
	r := New()
	_, err := r.Add(" web", &countingFactory{}, t0)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Add("a/b", &countingFactory{}, t0)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Empty(t, r.Names())
}
