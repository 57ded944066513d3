package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "clean name unchanged", input: "abc-123.jpg", expected: "abc-123.jpg"},
		{name: "replaces spaces and slashes", input: "a b/c", expected: "a_b_c"},
		{name: "empty falls back to default", input: "", expected: "default_image.jpg"},
		{name: "invalid chars each become underscore", input: "///", expected: "___"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Sanitize(tt.input))
		})
	}
}

func TestSanitize_RoundTrip(t *testing.T) {
	inputs := []string{"clean", "dirty name!", "", "émile", "a/b\\c:d"}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		assert.Equal(t, once, twice, "sanitize must be idempotent for %q", in)
	}
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "real_estate/L1_0.jpg", ObjectName("L1", 0))
	assert.Equal(t, "real_estate/L_1_2.jpg", ObjectName("L 1", 2))
}
