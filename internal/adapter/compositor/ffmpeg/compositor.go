package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/port"
)

var (
	ErrEmptyPath   = errors.New("path is empty")
	ErrInvalidPath = errors.New("path contains invalid characters")
)

func validatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if strings.ContainsRune(path, '\x00') {
		return ErrInvalidPath
	}
	return nil
}

// Compositor shells out to ffmpeg/ffprobe. Subprocesses inherit ctx, but
// callers only cancel between invocations: a started encode runs to
// completion.
type Compositor struct {
	ffmpegBin  string
	ffprobeBin string
}

func New(ffmpegBin, ffprobeBin string) *Compositor {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Compositor{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin}
}

func (c *Compositor) run(ctx context.Context, args ...string) error {
	// A started encode runs to completion: cancellation takes effect at
	// the checkpoints between invocations, never by killing the process
	// and leaving a truncated file behind.
	cmd := exec.CommandContext(context.WithoutCancel(ctx), c.ffmpegBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLines(string(out), 4))
	}
	return nil
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual
// failure reason lands.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

func isStillImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp":
		return true
	}
	return false
}

// fitFilter scales the visual into the profile geometry, padding instead
// of cropping so arbitrary source aspect ratios survive.
func fitFilter(profile domain.PlatformProfile) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1",
		profile.Width, profile.Height, profile.Width, profile.Height,
	)
}

func drawtextFilter(text string) string {
	return fmt.Sprintf(
		"drawtext=text='%s':fontcolor=white:fontsize=42:box=1:boxcolor=black@0.5:boxborderw=12:x=(w-text_w)/2:y=h-th-80",
		escapeDrawtext(text),
	)
}

func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `\'`)
	s = strings.ReplaceAll(s, ":", `\:`)
	return s
}

// encodeArgs is the shared encoder tail: CRF drives quality, with the
// profile's video bitrate as a hard cap so platform upload limits hold.
func encodeArgs(profile domain.PlatformProfile) []string {
	args := []string{
		"-r", fmt.Sprintf("%d", profile.FPS),
		"-c:v", "libx264",
		"-preset", profile.Preset,
		"-crf", fmt.Sprintf("%d", profile.CRF),
	}
	if profile.VideoBitrate != "" {
		args = append(args, "-maxrate", profile.VideoBitrate, "-bufsize", profile.VideoBitrate)
	}
	return append(args,
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", profile.AudioBitrate,
	)
}

// RenderSegment renders one scene into a clip. The narration audio is
// authoritative: the visual is trimmed or looped to the audio length,
// never the other way around.
func (c *Compositor) RenderSegment(ctx context.Context, scene domain.Scene, audioPath, visualPath string, profile domain.PlatformProfile, outPath string) error {
	for _, p := range []string{audioPath, visualPath, outPath} {
		if err := validatePath(p); err != nil {
			return fmt.Errorf("invalid path %q: %w", p, err)
		}
	}

	audioDur := 0.0
	if probe, err := c.Probe(ctx, audioPath); err == nil {
		audioDur = probe.Duration()
	}
	if audioDur <= 0 {
		audioDur = scene.Duration
	}

	vf := fitFilter(profile)
	if scene.Overlay != "" {
		vf += "," + drawtextFilter(scene.Overlay)
	}

	var args []string
	if isStillImage(visualPath) {
		args = []string{
			"-y",
			"-loop", "1",
			"-i", visualPath,
			"-i", audioPath,
		}
	} else {
		args = []string{"-y"}
		if probe, err := c.Probe(ctx, visualPath); err == nil {
			if visDur := probe.Duration(); visDur > 0 && visDur < audioDur {
				loops := int(audioDur/visDur) + 1
				args = append(args, "-stream_loop", fmt.Sprintf("%d", loops))
			}
		}
		args = append(args,
			"-i", visualPath,
			"-i", audioPath,
		)
	}

	args = append(args,
		"-map", "0:v",
		"-map", "1:a",
		"-t", fmt.Sprintf("%.3f", audioDur),
		"-vf", vf,
	)
	args = append(args, encodeArgs(profile)...)
	args = append(args, outPath)
	if err := c.run(ctx, args...); err != nil {
		return fmt.Errorf("render segment %d: %w", scene.Index, err)
	}
	return nil
}

// Thumbnail extracts a frame at the 1s mark, or the first frame when the
// video is shorter than that.
func (c *Compositor) Thumbnail(ctx context.Context, videoPath, outPath string) error {
	if err := validatePath(videoPath); err != nil {
		return fmt.Errorf("invalid input path: %w", err)
	}
	if err := validatePath(outPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	offset := "1"
	if probe, err := c.Probe(ctx, videoPath); err == nil && probe.Duration() < 1.1 {
		offset = "0"
	}

	return c.run(ctx,
		"-y",
		"-ss", offset,
		"-i", videoPath,
		"-vframes", "1",
		"-f", "image2",
		outPath,
	)
}

func (c *Compositor) Probe(ctx context.Context, path string) (*domain.ProbeResult, error) {
	if err := validatePath(path); err != nil {
		return nil, fmt.Errorf("invalid input path: %w", err)
	}

	cmd := exec.CommandContext(context.WithoutCancel(ctx), c.ffprobeBin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe domain.ProbeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &probe, nil
}

// Slate writes a single flat-color frame sized to the profile, used both
// as the designed placeholder and as the visual fallback.
func (c *Compositor) Slate(ctx context.Context, profile domain.PlatformProfile, outPath string) error {
	if err := validatePath(outPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	return c.run(ctx,
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x1f2430:s=%s:d=1", profile.Resolution()),
		"-frames:v", "1",
		outPath,
	)
}

// SilentAudio writes a silent clip of the given length, substituted when
// voice synthesis fails.
func (c *Compositor) SilentAudio(ctx context.Context, seconds float64, outPath string) error {
	if err := validatePath(outPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	if seconds <= 0 {
		return fmt.Errorf("invalid silence duration %.3f", seconds)
	}
	return c.run(ctx,
		"-y",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=stereo",
		"-t", fmt.Sprintf("%.3f", seconds),
		"-c:a", "aac",
		"-b:a", "128k",
		outPath,
	)
}

var _ port.Compositor = (*Compositor)(nil)
