package types

import "testing"

func TestVisualTypeValid(t *testing.T) {
	cases := []struct {
		name string
		vt   VisualType
		want bool
	}{
		{"slide", VisualSlide, true},
		{"diagram", VisualDiagram, true},
		{"graph", VisualGraph, true},
		{"formula", VisualFormula, true},
		{"code", VisualCode, true},
		{"unknown", VisualType("chart"), false},
		{"empty", VisualType(""), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.vt.Valid(); got != c.want {
				t.Fatalf("VisualType(%q).Valid() = %v; want %v", c.vt, got, c.want)
			}
		})
	}
}

func TestValidateNarration(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"too short", "short", false},
		{"exactly min", "0123456789", true},
		{"typical", "This is a perfectly reasonable narration sentence.", true},
		{"too long", stringOfLen(MaxNarrationLen + 1), false},
		{"exactly max", stringOfLen(MaxNarrationLen), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidateNarration(c.text); got != c.want {
				t.Fatalf("ValidateNarration(len=%d) = %v; want %v", len(c.text), got, c.want)
			}
		})
	}
}

func TestValidatePrompt(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"too short", "hi", false},
		{"exactly min", "12345", true},
		{"too long", stringOfLen(MaxPromptLen + 1), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ValidatePrompt(c.text); got != c.want {
				t.Fatalf("ValidatePrompt(len=%d) = %v; want %v", len(c.text), got, c.want)
			}
		})
	}
}

func TestSceneComplete(t *testing.T) {
	s := Scene{}
	if s.Complete() {
		t.Fatalf("empty scene should not be complete")
	}

	s.Audio = &AudioAsset{Path: "a.wav"}
	if s.Complete() {
		t.Fatalf("scene with only audio should not be complete")
	}

	s.Visual = &VisualAsset{Path: "v.png"}
	if !s.Complete() {
		t.Fatalf("scene with both assets should be complete")
	}

	s.Visual.Path = ""
	if s.Complete() {
		t.Fatalf("scene with an empty visual path should not be complete")
	}
}

func stringOfLen(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
