package repository

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		max       int
		wantRunes int
		want      string
	}{
		{"Short ASCII", "smtp timeout", maxErrorLength, 12, "smtp timeout"},
		{"Exact limit", strings.Repeat("a", 10), 10, 10, strings.Repeat("a", 10)},
		{"Long ASCII", strings.Repeat("a", 600), maxErrorLength, maxErrorLength, strings.Repeat("a", maxErrorLength)},
		{"Multi-byte over limit", strings.Repeat("é", 300), 250, 250, strings.Repeat("é", 250)},
		{"Multi-byte under limit", strings.Repeat("é", 300), maxErrorLength, 300, strings.Repeat("é", 300)},
		{"Emoji boundary", strings.Repeat("📮", 4), 3, 3, strings.Repeat("📮", 3)},
		{"Invalid bytes", "bad\xffreply", maxErrorLength, 9, "bad�reply"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.wantRunes, utf8.RuneCountInString(got))
			assert.Equal(t, tt.want, got)
		})
	}
}
