package segmenter

import (
	"slices"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"squeeze spaces and tabs", "a  \t b", "a b"},
		{"collapse blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"blank lines with spaces", "a\n  \n \t\n\nb", "a\n\nb"},
		{"strip line edges", "c   \n   d", "c\nd"},
		{"windows newlines", "one\r\ntwo\r\n", "one\ntwo"},
		{"null bytes", "nu\x00ll", "null"},
		{"trim", "  \n text \n ", "text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalize(tc.in); got != tc.want {
				t.Errorf("normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"One. Two! Three? four", []string{"One.", "Two!", "Three?", "four."}},
		{"Ends here.", []string{"Ends here."}},
		{"Wait... What?! ok", []string{"Wait...", "What?!", "ok."}},
		{"v1.2 is out. Upgrade", []string{"v1.2 is out.", "Upgrade."}},
		{"para one.\n\npara two", []string{"para one.", "para two."}},
		{"", nil},
	}
	for _, tc := range tests {
		if got := splitSentences(tc.in); !slices.Equal(got, tc.want) {
			t.Errorf("splitSentences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTailWords(t *testing.T) {
	tests := []struct {
		text  string
		limit int
		want  string
	}{
		{"alpha beta gamma", 10, "beta gamma"},
		{"alpha beta gamma", 9, "gamma"},
		{"alpha beta gamma", 4, ""},
		{"alpha", 10, ""},
		{"one\ntwo three", 9, "two three"},
		{"привет мир", 3, "мир"},
	}
	for _, tc := range tests {
		if got := tailWords(tc.text, tc.limit); got != tc.want {
			t.Errorf("tailWords(%q, %d) = %q, want %q", tc.text, tc.limit, got, tc.want)
		}
	}
}

func TestPrefixRunes(t *testing.T) {
	if got := prefixRunes("жжжж", 2); got != "жж" {
		t.Errorf("prefixRunes = %q", got)
	}
	if got := prefixRunes("ab", 5); got != "ab" {
		t.Errorf("prefixRunes = %q", got)
	}
}

func TestRewindAlwaysMovesForward(t *testing.T) {
	sent := "a b c d e f g h i j." // 10 words, 20 chars
	sentences := make([]string, 6)
	for i := range sentences {
		sentences[i] = sent
	}
	p := newPacker(Config{ChunkSize: 100, OverlapSize: 50, MinChunkSize: 1}, nil, "t", sentences)

	if next := p.rewind(3, 4); next <= 3 {
		t.Errorf("rewind(3, 4) = %d, must be > 3", next)
	}
	if next := p.rewind(0, 4); next != 2 {
		t.Errorf("rewind(0, 4) = %d, want 2", next)
	}
}
