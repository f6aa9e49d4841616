package visual

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "image/png" // decode to recover width/height from the provider's response

	"eduvid/internal/apperr"
)

// httpProvider calls a single external rendering service over HTTP,
// mirroring the plain net/http JSON-in, binary-out client style used by
// ttsclient.Client and by
// _examples/injaneity-brainbot-464/ingestion_service/deduplication's
// OpenAI fallback provider.
type httpProvider struct {
	url  string
	http *http.Client
}

func newHTTPProvider(url string) *httpProvider {
	return &httpProvider{url: url, http: &http.Client{Timeout: 45 * time.Second}}
}

type renderRequest struct {
	Prompt string `json:"prompt"`
}

// Render posts prompt to the provider and writes the returned image to
// outPath, decoding it only to recover its dimensions.
func (p *httpProvider) Render(ctx context.Context, prompt, outPath string) (width, height int, err error) {
	body, err := json.Marshal(renderRequest{Prompt: prompt})
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("visual provider returned status %d: %s", resp.StatusCode, msg))
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
	if len(raw) == 0 {
		return 0, 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("visual provider returned an empty image"))
	}

	cfg, _, decodeErr := image.DecodeConfig(bytes.NewReader(raw))
	if decodeErr == nil {
		width, height = cfg.Width, cfg.Height
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return 0, 0, apperr.Wrap(apperr.ErrFatal, err)
	}

	return width, height, nil
}
