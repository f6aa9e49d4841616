package types

// AudioAsset is the narration waveform rendered for one Scene.
type AudioAsset struct {
	SceneID     string  `json:"scene_id"`
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
	Fingerprint string  `json:"fingerprint"`
}

// VisualAsset is the rendered image/vector for one Scene.
type VisualAsset struct {
	SceneID     string `json:"scene_id"`
	Path        string `json:"path"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Format      string `json:"format"` // png | jpeg | svg
	Fingerprint string `json:"fingerprint"`
	Failed      bool   `json:"failed,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Video is the final muxed output of a completed Job.
type Video struct {
	Path        string  `json:"path"`
	DurationSec float64 `json:"duration_sec"`
	SizeBytes   int64   `json:"size_bytes"`
	Status      string  `json:"status"`
}
