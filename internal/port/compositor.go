package port

import (
	"context"

	"github.com/clipforge/renderd/internal/domain"
)

// Compositor renders per-scene segments and concatenates them into the
// final video. Any failure here is an encoding/environment error and is
// fatal to the job.
type Compositor interface {
	RenderSegment(ctx context.Context, scene domain.Scene, audioPath, visualPath string, profile domain.PlatformProfile, outPath string) error
	Compose(ctx context.Context, segments []domain.RenderedSegment, transitions []domain.Transition, profile domain.PlatformProfile, outPath string) error
	Thumbnail(ctx context.Context, videoPath, outPath string) error
	Probe(ctx context.Context, path string) (*domain.ProbeResult, error)

	// Fallback generators: a flat slate frame sized to the profile and a
	// silent audio clip of the given length.
	Slate(ctx context.Context, profile domain.PlatformProfile, outPath string) error
	SilentAudio(ctx context.Context, seconds float64, outPath string) error
}
