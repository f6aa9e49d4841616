// Package llmclient generates a Script from extracted document text using
// the Cohere Chat API, following the same cohere-go/v2 client
// construction used for embeddings in
// _examples/injaneity-brainbot-464/ingestion_service/deduplication/embeddings.go
// (cohereclient.NewClient with WithToken, a forced HTTP/1.1 transport to
// dodge the same HTTP/2 framing issues that file works around).
package llmclient

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"eduvid/internal/apperr"
	"eduvid/internal/breaker"
	"eduvid/internal/logging"
	"eduvid/internal/types"
)

const systemPrompt = `You are an instructional designer. Given source material, produce a ` +
	`JSON array of 3 to 7 scenes for a short educational video. Each element must have exactly ` +
	`these fields: "narration_text" (10-1000 characters, spoken narration for this scene), ` +
	`"visual_type" (one of "slide", "diagram", "graph", "formula", "code"), and "visual_prompt" ` +
	`(5-500 characters describing the visual to render). Respond with ONLY the JSON array, no ` +
	`surrounding prose.`

// Client generates scripts from document text.
type Client struct {
	cohere    *cohereclient.Client
	model     string
	hasAPIKey bool
	breaker   *breaker.Breaker
	log       logging.Logger
}

// Config carries the Cohere connection knobs.
type Config struct {
	APIKey string
	Model  string
}

// New builds a Client. br gates every Chat call behind the "llm" circuit
// breaker.
func New(cfg Config, br *breaker.Breaker, log logging.Logger) *Client {
	httpClient := &http.Client{
		Timeout: 90 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.APIKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &Client{
		cohere:    client,
		model:     cfg.Model,
		hasAPIKey: cfg.APIKey != "",
		breaker:   br,
		log:       log.With().Str("component", "llmclient").Logger(),
	}
}

// rawScene is the wire shape the model is instructed to emit; it is
// validated and repaired into types.Scene by sanitizeScenes.
type rawScene struct {
	NarrationText string `json:"narration_text"`
	VisualType    string `json:"visual_type"`
	VisualPrompt  string `json:"visual_prompt"`
}

var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// AdminConfig is the read-only configuration snapshot exposed by the
// admin status endpoint, grounded on
// original_source/server/app/services/llm_admin_service.py's
// get_current_config — narrowed to the single Cohere provider this
// module wires (see DESIGN.md for why the original's multi-provider
// fetch_models/test_model/update_config surface is not ported).
type AdminConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	HasAPIKey bool   `json:"has_api_key"`
}

// AdminConfig reports the client's current provider/model configuration.
func (c *Client) AdminConfig() AdminConfig {
	return AdminConfig{Provider: "cohere", Model: c.model, HasAPIKey: c.hasAPIKey}
}

// Healthy reports whether the LLM's circuit breaker is closed. It is a
// cheap pre-flight signal the orchestrator logs a warning against before
// starting a job — grounded on original_source/server/app/orchestrator.py's
// check_llm_health gate, adapted to read the breaker's own failure state
// instead of spending a live completion call per job.
func (c *Client) Healthy() bool {
	return c.breaker.State() == breaker.StateClosed
}

// Generate produces a Script from sourceText. On any upstream failure
// (breaker open, API error, unparsable response) it returns
// apperr.ErrUpstreamUnavailable wrapping the cause; callers fall back to
// GenerateDeterministic per spec.md's documented degraded path.
func (c *Client) Generate(ctx context.Context, sourceText, language string) (*types.Script, error) {
	var scenes []types.Scene

	err := c.breaker.Call(func() error {
		resp, err := c.cohere.V2.Chat(ctx, &cohere.V2ChatRequest{
			Model: c.model,
			Messages: cohere.ChatMessages{
				{
					Role: "system",
					System: &cohere.SystemMessageV2{
						Content: &cohere.SystemMessageV2Content{String: systemPrompt},
					},
				},
				{
					Role: "user",
					User: &cohere.UserMessageV2{
						Content: &cohere.UserMessageV2Content{String: sourceText},
					},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("cohere chat error: %w", err)
		}
		if resp == nil || resp.Message == nil || len(resp.Message.Content) == 0 {
			return fmt.Errorf("cohere chat returned empty response")
		}

		var text strings.Builder
		for _, block := range resp.Message.Content {
			if block.Text != nil {
				text.WriteString(block.Text.Text)
			}
		}

		parsed, perr := parseScenes(text.String())
		if perr != nil {
			return perr
		}
		scenes = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &types.Script{Scenes: sanitizeScenes(scenes), Language: language}, nil
}

// parseScenes extracts the first JSON array found in raw — the model is
// asked to emit only JSON but occasionally wraps it in prose or a code
// fence, so a regex fallback recovers the array before unmarshaling.
func parseScenes(raw string) ([]types.Scene, error) {
	candidate := strings.TrimSpace(raw)
	if !strings.HasPrefix(candidate, "[") {
		if m := jsonArrayPattern.FindString(raw); m != "" {
			candidate = m
		}
	}

	var rows []rawScene
	if err := json.Unmarshal([]byte(candidate), &rows); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("could not parse scene list: %w", err))
	}

	scenes := make([]types.Scene, 0, len(rows))
	for i, r := range rows {
		vt := types.VisualType(strings.ToLower(strings.TrimSpace(r.VisualType)))
		if !vt.Valid() {
			vt = types.VisualSlide
		}
		scenes = append(scenes, types.Scene{
			ID:            fmt.Sprintf("scene-%d", i+1),
			NarrationText: strings.TrimSpace(r.NarrationText),
			VisualType:    vt,
			VisualPrompt:  strings.TrimSpace(r.VisualPrompt),
			Status:        types.SceneStatusPending,
		})
	}
	return scenes, nil
}

// sanitizeScenes enforces the 3-7 scene bound (spec.md's resolved Open
// Question #2): fewer than three scenes are padded with generic filler,
// more than seven are truncated to the first seven.
func sanitizeScenes(scenes []types.Scene) []types.Scene {
	for len(scenes) < types.MinScenes {
		idx := len(scenes) + 1
		scenes = append(scenes, types.Scene{
			ID:            fmt.Sprintf("scene-%d", idx),
			NarrationText: "This section summarizes the preceding material.",
			VisualType:    types.VisualSlide,
			VisualPrompt:  "A simple title slide summarizing the topic.",
			Status:        types.SceneStatusPending,
		})
	}
	if len(scenes) > types.MaxScenes {
		scenes = scenes[:types.MaxScenes]
	}
	for i := range scenes {
		if !types.ValidateNarration(scenes[i].NarrationText) {
			scenes[i].NarrationText = clampLen(scenes[i].NarrationText, types.MinNarrationLen, types.MaxNarrationLen, "This section covers an important part of the source material.")
		}
		if !types.ValidatePrompt(scenes[i].VisualPrompt) {
			scenes[i].VisualPrompt = clampLen(scenes[i].VisualPrompt, types.MinPromptLen, types.MaxPromptLen, "An illustrative slide for this scene.")
		}
	}
	return scenes
}

func clampLen(s string, min, max int, fallback string) string {
	if len(s) < min {
		return fallback
	}
	if len(s) > max {
		return s[:max]
	}
	return s
}

// GenerateDeterministic builds a Script without calling the LLM, by
// splitting sourceText on blank lines into paragraphs, one slide scene
// per paragraph — the degraded fallback path used when the "llm" breaker
// is open or Generate otherwise fails. Fewer than three paragraphs are
// padded with filler scenes; paragraphs after the seventh are not used,
// and a paragraph longer than MaxNarrationLen is cut to that length.
func GenerateDeterministic(sourceText, language string) *types.Script {
	paragraphs := splitNonEmpty(sourceText)
	if len(paragraphs) == 0 {
		paragraphs = []string{sourceText}
	}

	count := len(paragraphs)
	if count < types.MinScenes {
		count = types.MinScenes
	}
	if count > types.MaxScenes {
		count = types.MaxScenes
	}

	scenes := make([]types.Scene, 0, count)
	for i := 0; i < count; i++ {
		var narration string
		if i < len(paragraphs) {
			narration = paragraphs[i]
		} else {
			narration = "This section summarizes the preceding material."
		}
		scenes = append(scenes, types.Scene{
			ID:            fmt.Sprintf("scene-%d", i+1),
			NarrationText: clampLen(narration, types.MinNarrationLen, types.MaxNarrationLen, "This section covers an important part of the source material."),
			VisualType:    types.VisualSlide,
			VisualPrompt:  "A slide summarizing this scene's narration.",
			Status:        types.SceneStatusPending,
		})
	}
	return &types.Script{Scenes: scenes, Language: language}
}

func splitNonEmpty(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
