package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clipforge/renderd/internal/domain"
)

const (
	// xfade length at a boundary; cuts get a near-zero blend so mixed
	// transition lists still form one filter chain.
	crossfadeSeconds = 0.5
	cutSeconds       = 0.05
)

// xfadeNames maps transition types onto ffmpeg xfade templates. Every
// type gets a distinct template; cut is handled by duration, not name.
var xfadeNames = map[domain.Transition]string{
	domain.TransitionFade:     "fade",
	domain.TransitionCut:      "fade",
	domain.TransitionDissolve: "dissolve",
	domain.TransitionSlide:    "slideleft",
	domain.TransitionWipe:     "wipeleft",
	domain.TransitionZoom:     "zoomin",
}

// Compose concatenates ordered segments into the final video. An all-cut
// transition list uses the concat demuxer with stream copy; anything else
// builds an xfade/acrossfade filter chain and re-encodes.
func (c *Compositor) Compose(ctx context.Context, segments []domain.RenderedSegment, transitions []domain.Transition, profile domain.PlatformProfile, outPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("no segments to compose")
	}
	if err := validatePath(outPath); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}
	for _, seg := range segments {
		if err := validatePath(seg.Path); err != nil {
			return fmt.Errorf("invalid segment path %q: %w", seg.Path, err)
		}
	}

	if len(segments) == 1 {
		return c.run(ctx, "-y", "-i", segments[0].Path, "-c", "copy", "-movflags", "+faststart", outPath)
	}

	if allCuts(transitions) {
		return c.concatCopy(ctx, segments, outPath)
	}
	return c.crossfadeChain(ctx, segments, transitions, profile, outPath)
}

func allCuts(transitions []domain.Transition) bool {
	for _, t := range transitions {
		if t != domain.TransitionCut {
			return false
		}
	}
	return true
}

// concatCopy joins uniformly-encoded segments without re-encoding via the
// concat demuxer list file.
func (c *Compositor) concatCopy(ctx context.Context, segments []domain.RenderedSegment, outPath string) error {
	listFile := filepath.Join(filepath.Dir(segments[0].Path), "concat_list.txt")
	var lines []string
	for _, seg := range segments {
		lines = append(lines, fmt.Sprintf("file '%s'", seg.Path))
	}
	if err := os.WriteFile(listFile, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer func() { _ = os.Remove(listFile) }()

	return c.run(ctx,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	)
}

// crossfadeChain chains xfade (video) and acrossfade (audio) pairwise:
// [0][1]xfade[v1]; [v1][2]xfade[v2]; ... with offsets accumulated from
// segment durations minus the blend overlap.
func (c *Compositor) crossfadeChain(ctx context.Context, segments []domain.RenderedSegment, transitions []domain.Transition, profile domain.PlatformProfile, outPath string) error {
	args := []string{"-y"}
	for _, seg := range segments {
		args = append(args, "-i", seg.Path)
	}

	var filter strings.Builder
	prevV := "[0:v]"
	prevA := "[0:a]"
	offset := 0.0

	for i := 1; i < len(segments); i++ {
		t := domain.TransitionFade
		if i-1 < len(transitions) {
			t = transitions[i-1]
		}
		name, ok := xfadeNames[t]
		if !ok {
			name = "fade"
		}
		blend := crossfadeSeconds
		if t == domain.TransitionCut {
			blend = cutSeconds
		}
		// The blend cannot exceed half the shorter neighbor.
		if limit := minDuration(segments[i-1], segments[i]) / 2; blend > limit && limit > 0 {
			blend = limit
		}
		offset += segments[i-1].Duration - blend

		outV := fmt.Sprintf("[v%d]", i)
		outA := fmt.Sprintf("[a%d]", i)
		fmt.Fprintf(&filter, "%s[%d:v]xfade=transition=%s:duration=%.3f:offset=%.3f%s;", prevV, i, name, blend, offset, outV)
		fmt.Fprintf(&filter, "%s[%d:a]acrossfade=d=%.3f%s", prevA, i, blend, outA)
		if i < len(segments)-1 {
			filter.WriteString(";")
		}
		prevV = outV
		prevA = outA
	}

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", prevV,
		"-map", prevA,
	)
	args = append(args, encodeArgs(profile)...)
	args = append(args, "-movflags", "+faststart", outPath)
	return c.run(ctx, args...)
}

func minDuration(a, b domain.RenderedSegment) float64 {
	if a.Duration < b.Duration {
		return a.Duration
	}
	return b.Duration
}
