package match

import "testing"

func TestSimilarity_Identical(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"태초에하나님이천지를창조하시니라", "a", "빛"} {
		if got := Similarity(s, s); got != 100 {
			t.Errorf("Similarity(%q, %q) = %d, want 100", s, s, got)
		}
	}
}

func TestSimilarity_Bounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		a, b string
	}{
		{"태초에하나님이", ""},
		{"하나님", "사람아들딸"},
		{"가나다라", "마바사아자차카타"},
	}
	for _, tc := range cases {
		got := Similarity(tc.a, tc.b)
		if got < 0 || got > 100 {
			t.Errorf("Similarity(%q, %q) = %d, out of [0,100]", tc.a, tc.b, got)
		}
	}
}

func TestSimilarity_EmptyAgainstNonEmpty(t *testing.T) {
	t.Parallel()

	if got := Similarity("태초에", ""); got != 0 {
		t.Errorf("Similarity(target, empty) = %d, want 0", got)
	}
}

func TestSimilarity_NearMiss(t *testing.T) {
	t.Parallel()

	// Two trailing runes missing from a 16-rune string: distance 2.
	target := "태초에하나님이천지를창조하시니라"
	partial := "태초에하나님이천지를창조하시"
	got := Similarity(target, partial)
	if got < 85 {
		t.Errorf("Similarity(near-complete) = %d, want >= 85", got)
	}

	// Score should degrade as more is missing.
	shorter := "태초에하나님이"
	if worse := Similarity(target, shorter); worse >= got {
		t.Errorf("expected score to degrade: %d (short) >= %d (near)", worse, got)
	}
}

func TestSimilarity_RoughlySymmetric(t *testing.T) {
	t.Parallel()

	a, b := "하나님이이르시되빛이있으라", "하나님이빛이있으라하시니"
	if d := Similarity(a, b) - Similarity(b, a); d != 0 {
		t.Errorf("Similarity asymmetric by %d", d)
	}
}
