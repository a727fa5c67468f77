package llm

import (
	"errors"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain json untouched",
			in:   `{"questions":[]}`,
			want: `{"questions":[]}`,
		},
		{
			name: "json fence stripped",
			in:   "```json\n{\"questions\":[]}\n```",
			want: `{"questions":[]}`,
		},
		{
			name: "bare fence stripped",
			in:   "```\n{\"a\":1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "think tokens removed",
			in:   "<think></think>{\"a\":1}",
			want: `{"a":1}`,
		},
		{
			name: "fence plus think plus whitespace",
			in:   "  ```json\n<think></think>\n{\"a\":1}\n```  ",
			want: `{"a":1}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	inner := errors.New("boom")
	if !errors.Is(&TransportError{err: inner}, inner) {
		t.Fatal("TransportError should unwrap to its cause")
	}
	if !errors.Is(&SchemaError{err: inner}, inner) {
		t.Fatal("SchemaError should unwrap to its cause")
	}
}
