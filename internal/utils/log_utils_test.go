package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/thereayou/planning-poker/internal/utils"
)

func TestSanitizeLogString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain", input: "Ann", want: "Ann"},
		{name: "newlines", input: "Ann\r\nINFO fake entry", want: "Ann INFO fake entry"},
		{name: "tabs", input: "a\tb", want: "a b"},
		{name: "unicode kept", input: "Zoë ☕", want: "Zoë ☕"},
		{name: "zero width dropped", input: "a\u200bb", want: "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.SanitizeLogString(tt.input))
		})
	}
}

func TestSanitizeLogStringTruncates(t *testing.T) {
	long := strings.Repeat("x", utils.MaxLogStringLength+10)
	got := utils.SanitizeLogString(long)
	assert.True(t, strings.HasSuffix(got, "... (truncated)"))
	assert.Len(t, got, utils.MaxLogStringLength+len("... (truncated)"))
}
