package llmclient

import (
	"errors"
	"testing"
	"time"

	"eduvid/internal/breaker"
	"eduvid/internal/logging"
	"eduvid/internal/types"
)

func testLogger() logging.Logger {
	return logging.New("test")
}

func TestHealthyReflectsBreakerState(t *testing.T) {
	br := breaker.New("llm-test", breaker.Config{FailureThreshold: 1, Cooldown: time.Minute}, testLogger())
	c := &Client{model: "command-r-plus", hasAPIKey: true, breaker: br}

	if !c.Healthy() {
		t.Fatal("Healthy() = false on a fresh breaker, want true")
	}

	// The first failing call trips the underlying breaker but Breaker.State
	// only learns the breaker is open once a subsequent call observes
	// ErrBreakerOpen, so two failing calls are needed to see Healthy() flip.
	_ = br.Call(func() error { return errors.New("boom") })
	_ = br.Call(func() error { return errors.New("boom") })
	if c.Healthy() {
		t.Fatal("Healthy() = true once the breaker is open, want false")
	}
}

func TestAdminConfigReportsProviderAndModel(t *testing.T) {
	br := breaker.New("llm-test", breaker.Config{FailureThreshold: 3, Cooldown: time.Minute}, testLogger())
	c := &Client{model: "command-r-plus", hasAPIKey: true, breaker: br}

	cfg := c.AdminConfig()
	if cfg.Provider != "cohere" || cfg.Model != "command-r-plus" || !cfg.HasAPIKey {
		t.Fatalf("AdminConfig() = %+v, unexpected", cfg)
	}
}

func TestSanitizeScenesPadsBelowMinimum(t *testing.T) {
	in := []types.Scene{
		{ID: "scene-1", NarrationText: "This is a narration long enough to pass.", VisualType: types.VisualSlide, VisualPrompt: "A decent slide prompt."},
	}
	out := sanitizeScenes(in)
	if len(out) != types.MinScenes {
		t.Fatalf("sanitizeScenes padded to %d scenes; want %d", len(out), types.MinScenes)
	}
}

func TestSanitizeScenesTruncatesAboveMaximum(t *testing.T) {
	in := make([]types.Scene, types.MaxScenes+3)
	for i := range in {
		in[i] = types.Scene{
			ID:            "scene",
			NarrationText: "This is a narration long enough to pass validation easily.",
			VisualType:    types.VisualSlide,
			VisualPrompt:  "A decent slide prompt for this scene.",
		}
	}
	out := sanitizeScenes(in)
	if len(out) != types.MaxScenes {
		t.Fatalf("sanitizeScenes truncated to %d scenes; want %d", len(out), types.MaxScenes)
	}
}

func TestSanitizeScenesRepairsOutOfBoundsFields(t *testing.T) {
	in := []types.Scene{
		{ID: "scene-1", NarrationText: "short", VisualType: types.VisualSlide, VisualPrompt: "ok"},
		{ID: "scene-2", NarrationText: "This is a perfectly fine narration sentence.", VisualType: types.VisualSlide, VisualPrompt: "A fine prompt."},
		{ID: "scene-3", NarrationText: "This is a perfectly fine narration sentence.", VisualType: types.VisualSlide, VisualPrompt: "A fine prompt."},
	}
	out := sanitizeScenes(in)
	for _, s := range out {
		if !types.ValidateNarration(s.NarrationText) {
			t.Fatalf("scene %s has an out-of-bounds narration after sanitization: %q", s.ID, s.NarrationText)
		}
		if !types.ValidatePrompt(s.VisualPrompt) {
			t.Fatalf("scene %s has an out-of-bounds prompt after sanitization: %q", s.ID, s.VisualPrompt)
		}
	}
}

func TestParseScenesRecoversArrayFromSurroundingProse(t *testing.T) {
	raw := "Sure, here is the scene list:\n```json\n[{\"narration_text\":\"This narration is long enough to be valid.\",\"visual_type\":\"slide\",\"visual_prompt\":\"A title slide for the topic.\"}]\n```\nLet me know if you need changes."
	scenes, err := parseScenes(raw)
	if err != nil {
		t.Fatalf("parseScenes failed: %v", err)
	}
	if len(scenes) != 1 {
		t.Fatalf("parseScenes found %d scenes; want 1", len(scenes))
	}
	if scenes[0].VisualType != types.VisualSlide {
		t.Fatalf("VisualType = %q; want %q", scenes[0].VisualType, types.VisualSlide)
	}
}

func TestParseScenesFallsBackToSlideForUnknownVisualType(t *testing.T) {
	raw := `[{"narration_text":"A narration sentence that is long enough.","visual_type":"infographic","visual_prompt":"Some prompt text."}]`
	scenes, err := parseScenes(raw)
	if err != nil {
		t.Fatalf("parseScenes failed: %v", err)
	}
	if scenes[0].VisualType != types.VisualSlide {
		t.Fatalf("unknown visual_type should fall back to slide, got %q", scenes[0].VisualType)
	}
}

func TestGenerateDeterministicStaysWithinSceneBounds(t *testing.T) {
	script := GenerateDeterministic("", "en")
	if len(script.Scenes) < types.MinScenes || len(script.Scenes) > types.MaxScenes {
		t.Fatalf("GenerateDeterministic produced %d scenes, outside [%d,%d]", len(script.Scenes), types.MinScenes, types.MaxScenes)
	}
}
