// Package compose is the Composer of spec.md §4.6: it muxes each
// scene's audio narration against its visual asset and concatenates the
// per-scene clips into the final video. It reuses the ffmpeg-go command
// construction style of
// _examples/injaneity-brainbot-464/creation_service/app/services/creator.go's
// CreateVideo, generalized from "one background video + one audio track
// + burned-in subtitles" to "one image/html visual + one audio track per
// scene, concatenated".
package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"eduvid/internal/apperr"
	"eduvid/internal/logging"
	"eduvid/internal/types"
)

const (
	videoWidth  = 1920
	videoHeight = 1080
	videoCodec  = "libx264"
	audioCodec  = "aac"
	audioBitrate = "192k"
	videoPreset = "medium"

	placeholderColor = "gray"
)

// Composer renders the final Video from a Job's completed scenes.
type Composer struct {
	videoDir string
	log      logging.Logger
}

// New builds a Composer that writes finished videos under videoDir.
func New(videoDir string, log logging.Logger) *Composer {
	return &Composer{videoDir: videoDir, log: log.With().Str("component", "composer").Logger()}
}

// Compose muxes each scene's visual against its audio into a per-scene
// clip, then concatenates the clips in scene order into one mp4 at
// <videoDir>/<jobID>.mp4. Scenes whose visual render failed (VisualAsset
// .Failed) fall back to a still color frame. The orchestrator passes only
// completed scenes, so in the pipeline a scene with a failed visual is
// left out of the video rather than shown as a color frame.
func (c *Composer) Compose(ctx context.Context, jobID string, scenes []types.Scene) (*types.Video, error) {
	if len(scenes) == 0 {
		return nil, apperr.Wrap(apperr.ErrFatal, fmt.Errorf("compose: job %s has no scenes", jobID))
	}

	workDir := filepath.Join(c.videoDir, jobID, "clips")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrFatal, err)
	}

	clipPaths := make([]string, 0, len(scenes))
	var totalDuration float64

	for i, scene := range scenes {
		clipPath := filepath.Join(workDir, fmt.Sprintf("scene-%03d.mp4", i))
		dur, err := c.renderClip(scene, clipPath)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrFatal, fmt.Errorf("compose: scene %s: %w", scene.ID, err))
		}
		clipPaths = append(clipPaths, clipPath)
		totalDuration += dur
	}

	outPath := filepath.Join(c.videoDir, jobID+".mp4")
	if err := concatClips(clipPaths, outPath); err != nil {
		return nil, apperr.Wrap(apperr.ErrFatal, err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrFatal, err)
	}

	return &types.Video{
		Path:        outPath,
		DurationSec: totalDuration,
		SizeBytes:   info.Size(),
		Status:      "ready",
	}, nil
}

// renderClip muxes one scene's visual against its audio into a single
// short clip, looping the still image for the audio's duration. When the
// scene's visual render failed, a solid color frame stands in for it so
// the job can still complete with errors instead of failing outright.
func (c *Composer) renderClip(scene types.Scene, outPath string) (float64, error) {
	if scene.Audio == nil || scene.Audio.Path == "" {
		return 0, fmt.Errorf("scene %s has no audio asset", scene.ID)
	}

	duration := scene.Audio.DurationSec
	if duration <= 0 {
		duration = 3
	}

	var image *ffmpeg.Stream
	if scene.Visual != nil && !scene.Visual.Failed && scene.Visual.Path != "" {
		image = ffmpeg.Input(scene.Visual.Path, ffmpeg.KwArgs{"loop": 1, "t": fmt.Sprintf("%.3f", duration)})
	} else {
		image = ffmpeg.Input(fmt.Sprintf("color=c=%s:s=%dx%d:d=%.3f", placeholderColor, videoWidth, videoHeight, duration),
			ffmpeg.KwArgs{"f": "lavfi"})
	}
	audio := ffmpeg.Input(scene.Audio.Path)

	scaled := ffmpeg.Filter([]*ffmpeg.Stream{image}, "scale", ffmpeg.Args{fmt.Sprintf("%d:%d", videoWidth, videoHeight)})

	err := ffmpeg.Output([]*ffmpeg.Stream{scaled, audio}, outPath, ffmpeg.KwArgs{
		"c:v":      videoCodec,
		"c:a":      audioCodec,
		"b:a":      audioBitrate,
		"preset":   videoPreset,
		"pix_fmt":  "yuv420p",
		"shortest": "",
	}).OverWriteOutput().Run()
	if err != nil {
		return 0, fmt.Errorf("ffmpeg clip render failed: %w", err)
	}
	return duration, nil
}

// concatClips joins a sequence of mp4 clips with matching codecs using
// ffmpeg's concat demuxer via an on-disk manifest file.
func concatClips(clipPaths []string, outPath string) error {
	manifest, err := os.CreateTemp("", "eduvid-concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(manifest.Name())
	defer manifest.Close()

	for _, p := range clipPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(manifest, "file '%s'\n", abs); err != nil {
			return err
		}
	}
	manifest.Close()

	err = ffmpeg.Input(manifest.Name(), ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().Run()
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w", err)
	}
	return nil
}
