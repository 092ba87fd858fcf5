package textutil

import (
	"testing"
)

func TestEnsureUTF8ValidPassthrough(t *testing.T) {
	tests := []string{
		"",
		"hello",
		"héllo wörld",
		"日本語のテキスト",
		"emoji 🎉 test",
	}
	for _, s := range tests {
		if got := EnsureUTF8(s); got != s {
			t.Errorf("EnsureUTF8(%q) = %q, want unchanged", s, got)
		}
	}
}

func TestEnsureUTF8Windows1252(t *testing.T) {
	// "café" with é as 0xE9 (Windows-1252 / Latin-1)
	raw := string([]byte{'c', 'a', 'f', 0xE9})
	got := EnsureUTF8(raw)
	if got != "café" {
		t.Errorf("EnsureUTF8(latin1 café) = %q, want %q", got, "café")
	}
}

func TestSanitizeUTF8(t *testing.T) {
	raw := string([]byte{'o', 'k', 0xFF, 0xFE, '!'})
	got := SanitizeUTF8(raw)
	want := "ok��!"
	if got != want {
		t.Errorf("SanitizeUTF8 = %q, want %q", got, want)
	}
}

func TestEncodingByName(t *testing.T) {
	if EncodingByName("windows-1252") == nil {
		t.Error("windows-1252 should resolve")
	}
	if EncodingByName("no-such-charset") != nil {
		t.Error("unknown charset should return nil")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"héllo wörld", 8, "héllo..."},
		{"ab", 1, "a"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.s, tt.max); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\nfirst\nsecond"); got != "first" {
		t.Errorf("FirstLine = %q, want %q", got, "first")
	}
	if got := FirstLine("only"); got != "only" {
		t.Errorf("FirstLine = %q, want %q", got, "only")
	}
}
