package service

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/infrastructure/logger"
	"github.com/clipforge/renderd/internal/port"
)

// ProgressFunc reports completion of a fraction of the given stage. The
// orchestrator maps it onto the job's overall percentage.
type ProgressFunc func(stage domain.Stage, frac float64, message string)

type GeneratorConfig struct {
	TempRoot         string
	OutputRoot       string
	ProviderTimeout  time.Duration
	SceneConcurrency int
	Scene            SceneOptions
}

// Generator drives one job through scene rendering, per-scene synthesis,
// and composition. Provider failures degrade to fallback content; only
// encoding and I/O errors fail the job.
type Generator struct {
	voice    port.VoiceSynthesizer
	media    port.MediaResolver
	comp     port.Compositor
	profiles map[string]domain.PlatformProfile
	cfg      GeneratorConfig
}

func NewGenerator(
	voice port.VoiceSynthesizer,
	media port.MediaResolver,
	comp port.Compositor,
	profiles map[string]domain.PlatformProfile,
	cfg GeneratorConfig,
) *Generator {
	if cfg.SceneConcurrency < 1 {
		cfg.SceneConcurrency = 1
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 15 * time.Second
	}
	return &Generator{
		voice:    voice,
		media:    media,
		comp:     comp,
		profiles: profiles,
		cfg:      cfg,
	}
}

type GenerateResult struct {
	VideoPath     string
	ThumbnailPath string
	SceneCount    int
	FallbackCount int
	Duration      float64
	Width         int
	Height        int
	FileSize      int64
}

// sceneAssets holds the synthesized inputs for one scene.
type sceneAssets struct {
	audioPath  string
	visualPath string
	duration   float64
	fallback   bool
}

func (g *Generator) Generate(ctx context.Context, job *domain.VideoJob, report ProgressFunc) (*GenerateResult, error) {
	profile, ok := g.profiles[job.Profile]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProfile, job.Profile)
	}

	report(domain.StageSceneParsing, 0, "parsing script into scenes")

	mediaByScene := make(map[int]string, len(job.Media))
	for _, sel := range job.Media {
		mediaByScene[sel.SceneIndex] = sel.Ref
	}
	opts := g.cfg.Scene
	opts.MediaByScene = mediaByScene

	scenes, err := RenderScenes(job.ScriptText, opts)
	if err != nil {
		return nil, err
	}
	report(domain.StageSceneParsing, 1, fmt.Sprintf("script split into %d scenes", len(scenes)))

	workDir, err := os.MkdirTemp(g.cfg.TempRoot, "job-"+job.ID+"-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	// Job-scoped working set is removed on every exit path, including
	// cancellation and failure.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Error.Printf("job %s: remove work dir: %v", job.ID, err)
		}
	}()

	assets, err := g.synthesizeScenes(ctx, job, scenes, profile, workDir, report)
	if err != nil {
		return nil, err
	}

	fallbackCount := 0
	for _, a := range assets {
		if a.fallback {
			fallbackCount++
		}
	}
	if fallbackCount*2 > len(scenes) {
		logger.Warn.Printf("job %s: %d of %d scenes used fallback content, provider outage likely", job.ID, fallbackCount, len(scenes))
	}

	segments, err := g.renderSegments(ctx, job, scenes, assets, profile, workDir, report)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outDir := filepath.Join(g.cfg.OutputRoot, job.ID)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	videoPath := filepath.Join(outDir, "video.mp4")

	transitions := boundaryTransitions(scenes)
	if err := g.comp.Compose(ctx, segments, transitions, profile, videoPath); err != nil {
		return nil, fmt.Errorf("compose: %w", err)
	}
	report(domain.StageVideoComposition, 1, "segments composed")

	// Segments are temporary; drop them now that composition succeeded.
	for _, seg := range segments {
		_ = os.Remove(seg.Path)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumbPath := filepath.Join(outDir, "thumbnail.jpg")
	if err := g.comp.Thumbnail(ctx, videoPath, thumbPath); err != nil {
		return nil, fmt.Errorf("thumbnail: %w", err)
	}
	report(domain.StageThumbnail, 1, "thumbnail extracted")

	report(domain.StageFinalization, 0, "probing output")
	result := &GenerateResult{
		VideoPath:     videoPath,
		ThumbnailPath: thumbPath,
		SceneCount:    len(scenes),
		FallbackCount: fallbackCount,
	}
	if probe, err := g.comp.Probe(ctx, videoPath); err != nil {
		logger.Warn.Printf("job %s: probe of final output failed: %v", job.ID, err)
	} else {
		result.Duration = probe.Duration()
		result.Width, result.Height = probe.Dimensions()
		result.FileSize = probe.Size()
	}
	if result.FileSize == 0 {
		if info, err := os.Stat(videoPath); err == nil {
			result.FileSize = info.Size()
		}
	}

	return result, nil
}

// synthesizeScenes fans per-scene provider calls out across a bounded
// group and gathers results in scene order. Provider errors are absorbed
// as fallback content; only fallback generation itself can fail the job.
func (g *Generator) synthesizeScenes(
	ctx context.Context,
	job *domain.VideoJob,
	scenes []domain.Scene,
	profile domain.PlatformProfile,
	workDir string,
	report ProgressFunc,
) ([]sceneAssets, error) {
	report(domain.StageAudioGeneration, 0, "synthesizing narration")

	assets := make([]sceneAssets, len(scenes))
	var done int
	var mu sync.Mutex

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.cfg.SceneConcurrency)

	for i := range scenes {
		scene := scenes[i]
		grp.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			a, err := g.synthesizeOne(gctx, job, scene, profile, workDir)
			if err != nil {
				return err
			}
			assets[scene.Index] = a

			mu.Lock()
			done++
			frac := float64(done) / float64(len(scenes))
			mu.Unlock()
			report(domain.StageAudioGeneration, frac, fmt.Sprintf("scene %d/%d ready", scene.Index+1, len(scenes)))
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}

func (g *Generator) synthesizeOne(
	ctx context.Context,
	job *domain.VideoJob,
	scene domain.Scene,
	profile domain.PlatformProfile,
	workDir string,
) (sceneAssets, error) {
	a := sceneAssets{duration: scene.Duration}

	audioPath := filepath.Join(workDir, fmt.Sprintf("narration_%03d.mp3", scene.Index))
	seconds, err := g.synthesizeVoice(ctx, scene.Text, job.Voice, audioPath)
	switch {
	case err == nil:
		a.audioPath = audioPath
		if seconds > 0 {
			a.duration = seconds
		}
	case ctx.Err() != nil:
		// Cancellation and job timeout are not provider failures.
		return a, ctx.Err()
	default:
		logger.Warn.Printf("job %s scene %d: voice synthesis failed, using silence: %v", job.ID, scene.Index, err)
		silencePath := filepath.Join(workDir, fmt.Sprintf("silence_%03d.m4a", scene.Index))
		if err := g.comp.SilentAudio(ctx, scene.Duration, silencePath); err != nil {
			return a, fmt.Errorf("silent audio fallback: %w", err)
		}
		a.audioPath = silencePath
		a.fallback = true
	}

	if scene.Placeholder {
		// No asset was chosen for this scene; a slate is the designed
		// visual, not a degradation.
		slatePath := filepath.Join(workDir, fmt.Sprintf("slate_%03d.jpg", scene.Index))
		if err := g.comp.Slate(ctx, profile, slatePath); err != nil {
			return a, fmt.Errorf("placeholder slate: %w", err)
		}
		a.visualPath = slatePath
		return a, nil
	}

	visualPath := filepath.Join(workDir, fmt.Sprintf("visual_%03d%s", scene.Index, visualExt(scene.VisualRef)))
	err = g.resolveMedia(ctx, scene.VisualRef, visualPath)
	switch {
	case err == nil:
		a.visualPath = visualPath
	case ctx.Err() != nil:
		return a, ctx.Err()
	default:
		logger.Warn.Printf("job %s scene %d: media resolution failed, using slate: %v", job.ID, scene.Index, err)
		slatePath := filepath.Join(workDir, fmt.Sprintf("slate_%03d.jpg", scene.Index))
		if err := g.comp.Slate(ctx, profile, slatePath); err != nil {
			return a, fmt.Errorf("slate fallback: %w", err)
		}
		a.visualPath = slatePath
		a.fallback = true
	}

	return a, nil
}

// synthesizeVoice calls the provider with a per-call timeout, retrying
// once before the caller falls back to silence.
func (g *Generator) synthesizeVoice(ctx context.Context, text string, voice domain.VoiceSelection, outPath string) (float64, error) {
	var seconds float64
	backoff := retry.WithMaxRetries(1, retry.NewConstant(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.ProviderTimeout)
		defer cancel()

		var err error
		seconds, err = g.voice.Synthesize(callCtx, text, voice.VoiceID, voice.Language, outPath)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return seconds, err
}

func (g *Generator) resolveMedia(ctx context.Context, ref, outPath string) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(500*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.ProviderTimeout)
		defer cancel()

		if err := g.media.Resolve(callCtx, ref, outPath); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// renderSegments runs the compositor over each scene in order, with a
// cancellation checkpoint before every subprocess start. Once a segment
// render begins it runs to completion.
func (g *Generator) renderSegments(
	ctx context.Context,
	job *domain.VideoJob,
	scenes []domain.Scene,
	assets []sceneAssets,
	profile domain.PlatformProfile,
	workDir string,
	report ProgressFunc,
) ([]domain.RenderedSegment, error) {
	segments := make([]domain.RenderedSegment, 0, len(scenes))
	for i, scene := range scenes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a := assets[i]
		segPath := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
		if err := g.comp.RenderSegment(ctx, scene, a.audioPath, a.visualPath, profile, segPath); err != nil {
			return nil, fmt.Errorf("render segment %d: %w", i, err)
		}

		status := domain.SegmentStatusOK
		if a.fallback {
			status = domain.SegmentStatusFallback
		}
		segments = append(segments, domain.RenderedSegment{
			SceneIndex: i,
			Path:       segPath,
			Duration:   a.duration,
			Status:     status,
		})

		// Segment rendering covers the first 80% of the composition band;
		// the final concat takes the rest.
		frac := 0.8 * float64(i+1) / float64(len(scenes))
		report(domain.StageVideoComposition, frac, fmt.Sprintf("segment %d/%d rendered", i+1, len(scenes)))
	}
	return segments, nil
}

// boundaryTransitions returns the transition applied at each segment
// boundary: the transition-in of the following scene.
func boundaryTransitions(scenes []domain.Scene) []domain.Transition {
	if len(scenes) < 2 {
		return nil
	}
	out := make([]domain.Transition, 0, len(scenes)-1)
	for _, s := range scenes[1:] {
		out = append(out, s.Transition)
	}
	return out
}

func visualExt(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	switch ext := path.Ext(p); ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".mp4", ".mov", ".webm":
		return ext
	default:
		return ".jpg"
	}
}
