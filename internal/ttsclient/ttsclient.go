// Package ttsclient calls the narration TTS service described in
// spec.md §6's external contract: a plain HTTP POST returning a binary
// waveform, the same "call a sidecar service over HTTP, write the body
// to disk" shape _examples/injaneity-brainbot-464/creation_service/app/services
// uses for its own media pipeline calls.
package ttsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
)

// Request mirrors the TTS service's documented request body.
type Request struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Format       string  `json:"format"`
	Speed        float64 `json:"speed"`
	Exaggeration float64 `json:"exaggeration"`
	CFGWeight    float64 `json:"cfg_weight"`
	Temperature  float64 `json:"temperature"`
}

// Client calls the TTS service.
type Client struct {
	baseURL string
	http    *http.Client
	log     logging.Logger
}

// New builds a Client targeting baseURL.
func New(baseURL string, log logging.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log.With().Str("component", "ttsclient").Logger(),
	}
}

// Healthy makes a short-timeout GET against the TTS service's /health
// endpoint, grounded on original_source/server/app/services/tts_service.py's
// check_tts_service_health. It is a non-blocking pre-flight signal only:
// callers log a warning on failure and proceed with the job regardless,
// per that function's original "job may fail" logging rather than an
// outright refusal to start.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	probeClient := &http.Client{Timeout: 5 * time.Second}
	resp, err := probeClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Synthesize calls the TTS service and writes the returned waveform to
// outPath. It returns the approximate duration in seconds, always
// estimated from the written byte size; no response header is consulted
// and the audio is not decoded.
func (c *Client) Synthesize(ctx context.Context, req Request, outPath string) (durationSec float64, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrFatal, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("tts service returned status %d: %s", resp.StatusCode, msg))
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrFatal, err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, err)
	}
	if n == 0 {
		return 0, apperr.Wrap(apperr.ErrUpstreamUnavailable, fmt.Errorf("tts service returned an empty waveform"))
	}

	return estimateDurationSec(n, req.Format), nil
}

// estimateDurationSec assumes a fixed bitrate per format — a rough
// estimate good enough to drive scene pacing in the composer, not an
// exact decode.
func estimateDurationSec(sizeBytes int64, format string) float64 {
	bitrateBps := 128000.0 / 8 // bytes/sec, mp3-equivalent default
	switch format {
	case "wav", "pcm":
		bitrateBps = 176400 // 44.1kHz * 16bit * 2ch / 8
	}
	return float64(sizeBytes) / bitrateBps
}
