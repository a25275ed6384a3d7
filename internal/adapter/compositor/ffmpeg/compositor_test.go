package ffmpeg

import (
	"context"
	"strings"
	"testing"

	"github.com/clipforge/renderd/internal/domain"
)

func TestRunFinishesAfterCancel(t *testing.T) {
	c := &Compositor{ffmpegBin: "sleep", ffprobeBin: "ffprobe"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A started invocation must run to completion; cancellation only takes
	// effect at the checkpoints between invocations.
	if err := c.run(ctx, "0.05"); err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
}

func TestEncodeArgs(t *testing.T) {
	profile := domain.PlatformProfile{
		FPS: 30, VideoBitrate: "4M", AudioBitrate: "128k", CRF: 23, Preset: "fast",
	}
	joined := strings.Join(encodeArgs(profile), " ")
	for _, want := range []string{"-r 30", "-preset fast", "-crf 23", "-maxrate 4M", "-bufsize 4M", "-b:a 128k"} {
		if !strings.Contains(joined, want) {
			t.Errorf("encodeArgs missing %q: %s", want, joined)
		}
	}

	// No rate cap when the profile leaves the bitrate unset.
	joined = strings.Join(encodeArgs(domain.PlatformProfile{FPS: 30}), " ")
	if strings.Contains(joined, "-maxrate") {
		t.Errorf("unexpected rate cap without a configured bitrate: %s", joined)
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid path", "/tmp/segment_001.mp4", nil},
		{"relative path", "out/video.mp4", nil},
		{"empty path", "", ErrEmptyPath},
		{"null byte", "/tmp/evil\x00.mp4", ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validatePath(tt.path); err != tt.wantErr {
				t.Errorf("validatePath(%q) = %v, want %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	c := New("", "")
	if c.ffmpegBin != "ffmpeg" {
		t.Errorf("ffmpegBin = %q, want ffmpeg", c.ffmpegBin)
	}
	if c.ffprobeBin != "ffprobe" {
		t.Errorf("ffprobeBin = %q, want ffprobe", c.ffprobeBin)
	}

	c = New("/usr/local/bin/ffmpeg", "/usr/local/bin/ffprobe")
	if c.ffmpegBin != "/usr/local/bin/ffmpeg" {
		t.Errorf("ffmpegBin = %q", c.ffmpegBin)
	}
}

func TestLastLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"fewer lines than n", "one\ntwo", 4, "one | two"},
		{"exactly n", "a\nb\nc", 3, "a | b | c"},
		{"keeps tail", "a\nb\nc\nd\ne", 2, "d | e"},
		{"trailing newline", "a\nb\n", 2, "a | b"},
		{"empty", "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lastLines(tt.input, tt.n); got != tt.want {
				t.Errorf("lastLines(%q, %d) = %q, want %q", tt.input, tt.n, got, tt.want)
			}
		})
	}
}

func TestIsStillImage(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/tmp/slate_001.jpg", true},
		{"/tmp/photo.JPEG", true},
		{"/tmp/frame.png", true},
		{"/tmp/art.webp", true},
		{"/tmp/clip.mp4", false},
		{"/tmp/clip.mov", false},
		{"/tmp/noext", false},
	}

	for _, tt := range tests {
		if got := isStillImage(tt.path); got != tt.want {
			t.Errorf("isStillImage(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFitFilter(t *testing.T) {
	profile := domain.PlatformProfile{Width: 1080, Height: 1920}
	got := fitFilter(profile)
	want := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2,setsar=1"
	if got != want {
		t.Errorf("fitFilter = %q, want %q", got, want)
	}
}

func TestEscapeDrawtext(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Try it today", "Try it today"},
		{"apostrophe", "It's here", `It\'s here`},
		{"colon", "Note: read this", `Note\: read this`},
		{"backslash", `a\b`, `a\\b`},
		{"mixed", `It's a\b: ok`, `It\'s a\\b\: ok`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeDrawtext(tt.input); got != tt.want {
				t.Errorf("escapeDrawtext(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDrawtextFilter(t *testing.T) {
	got := drawtextFilter("It's time")
	if !strings.Contains(got, `text='It\'s time'`) {
		t.Errorf("drawtextFilter did not escape text: %q", got)
	}
	if !strings.HasPrefix(got, "drawtext=") {
		t.Errorf("drawtextFilter = %q, want drawtext prefix", got)
	}
}

func TestAllCuts(t *testing.T) {
	tests := []struct {
		name        string
		transitions []domain.Transition
		want        bool
	}{
		{"empty", nil, true},
		{"all cuts", []domain.Transition{domain.TransitionCut, domain.TransitionCut}, true},
		{"mixed", []domain.Transition{domain.TransitionCut, domain.TransitionFade}, false},
		{"all fades", []domain.Transition{domain.TransitionFade}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := allCuts(tt.transitions); got != tt.want {
				t.Errorf("allCuts(%v) = %v, want %v", tt.transitions, got, tt.want)
			}
		})
	}
}

func TestXfadeNamesCoverAllTransitions(t *testing.T) {
	for _, tr := range []domain.Transition{
		domain.TransitionFade,
		domain.TransitionCut,
		domain.TransitionDissolve,
		domain.TransitionSlide,
		domain.TransitionWipe,
		domain.TransitionZoom,
	} {
		if _, ok := xfadeNames[tr]; !ok {
			t.Errorf("no xfade template for transition %q", tr)
		}
	}
}

func TestMinDuration(t *testing.T) {
	a := domain.RenderedSegment{Duration: 3.0}
	b := domain.RenderedSegment{Duration: 5.0}
	if got := minDuration(a, b); got != 3.0 {
		t.Errorf("minDuration = %v, want 3.0", got)
	}
	if got := minDuration(b, a); got != 3.0 {
		t.Errorf("minDuration = %v, want 3.0", got)
	}
}
