package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestLocalProviderStreamsValidUTF8(t *testing.T) {
	var p LocalProvider
	msgs := []ChatMessage{{Role: RoleUser, Content: strings.Repeat("¿Qué tal? ñandú ", 5)}}

	for i := 0; i < 20; i++ {
		var streamed strings.Builder
		got, err := p.Stream(context.Background(), "", msgs, func(d string) {
			if !utf8.ValidString(d) {
				t.Fatalf("chunk %q is not valid UTF-8", d)
			}
			streamed.WriteString(d)
		})
		if err != nil {
			t.Fatalf("Stream() error: %v", err)
		}
		if got != streamed.String() || !strings.Contains(got, "ñandú") {
			t.Fatalf("unexpected answer %q", got)
		}
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	long := strings.Repeat("é", 150)
	answer := localAnswer([]ChatMessage{{Role: RoleUser, Content: long}})
	if !utf8.ValidString(answer) {
		t.Fatalf("answer is not valid UTF-8: %q", answer)
	}

	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"ñandú", 10, "ñandú"},
		{"ñandúes", 6, "ñan..."},
		{"éééé", 2, "éé"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
