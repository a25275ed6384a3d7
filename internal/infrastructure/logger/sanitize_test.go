package logger

import "testing"

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain profile name",
			input: "vertical",
			want:  "vertical",
		},
		{
			name:  "newline injection",
			input: "horizontal\nINFO: fake log entry",
			want:  "horizontal\\nINFO: fake log entry",
		},
		{
			name:  "carriage return",
			input: "user\rmore",
			want:  "user\\rmore",
		},
		{
			name:  "tab",
			input: "a\tb",
			want:  "a\\tb",
		},
		{
			name:  "null byte",
			input: "user\x00id",
			want:  "user\\x00id",
		},
		{
			name:  "ansi escape",
			input: "user\x1b[31mred",
			want:  "user\\x1b[31mred",
		},
		{
			name:  "unicode preserved",
			input: "café 日本語 🎬",
			want:  "café 日本語 🎬",
		},
		{
			name:  "empty string",
			input: "",
			want:  "",
		},
		{
			name:  "other control characters",
			input: "a\x07b\x7fc",
			want:  "a\\x07b\\x7fc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
