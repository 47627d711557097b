package stringutil

import "testing"

func TestTruncate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty string", "", 10, ""},
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"needs truncation", "hello world", 8, "hello..."},
		{"maxLen 4 (minimum)", "hello", 4, "h..."},
		{"maxLen 3 (too small)", "hello", 3, "hello"},
		{"maxLen 0", "hello", 0, "hello"},
		{"maxLen negative", "hello", -1, "hello"},
		{"unicode string", "héllo wörld", 8, "héllo..."},
		{"unicode truncation", "日本語テスト", 5, "日本..."},
		{"emoji", "👋🌍🎉", 2, "👋🌍🎉"},                 // maxLen < 4, returns unchanged
		{"emoji no truncate", "👋🌍🎉🚀🌟", 5, "👋🌍🎉🚀🌟"}, // exactly 5 runes = maxLen
		{"emoji truncate", "👋🌍🎉🚀🌟🍊", 5, "👋🌍..."},   // 6 runes > maxLen 5
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Truncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func BenchmarkTruncate(b *testing.B) {
	s := "This is a moderately long string that will need to be truncated"
	for range b.N {
		_ = Truncate(s, 20)
	}
}

func BenchmarkTruncate_NoTruncation(b *testing.B) {
	s := "short"
	for range b.N {
		_ = Truncate(s, 20)
	}
}

func BenchmarkTruncate_Unicode(b *testing.B) {
	s := "日本語のテスト文字列です"
	for range b.N {
		_ = Truncate(s, 8)
	}
}

func TestPlural(t *testing.T) {
	t.Parallel()

	if got := Plural(1, "worker", ""); got != "worker" {
		t.Errorf("Plural(1) = %q, want %q", got, "worker")
	}
	if got := Plural(3, "worker", ""); got != "workers" {
		t.Errorf("Plural(3) = %q, want %q", got, "workers")
	}
	if got := Plural(2, "retry", "retries"); got != "retries" {
		t.Errorf("Plural(2) = %q, want %q", got, "retries")
	}
}

func TestPadLeft(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n     int
		width int
		want  string
	}{
		{5, 3, "  5"},
		{123, 3, "123"},
		{1234, 3, "1234"},
		{-7, 4, "  -7"},
	}
	for _, tt := range tests {
		if got := PadLeft(tt.n, tt.width); got != tt.want {
			t.Errorf("PadLeft(%d, %d) = %q, want %q", tt.n, tt.width, got, tt.want)
		}
	}
}
