package domain

type Transition string

const (
	TransitionFade     Transition = "fade"
	TransitionCut      Transition = "cut"
	TransitionDissolve Transition = "dissolve"
	TransitionSlide    Transition = "slide"
	TransitionWipe     Transition = "wipe"
	TransitionZoom     Transition = "zoom"
)

func (t Transition) Valid() bool {
	switch t {
	case TransitionFade, TransitionCut, TransitionDissolve, TransitionSlide, TransitionWipe, TransitionZoom:
		return true
	}
	return false
}

// Scene is a timed narrative unit derived from the script, immutable once
// the renderer has produced it. Offsets form a gapless prefix sum:
// Scene[i].End == Scene[i+1].Start.
type Scene struct {
	Index       int
	Text        string
	Duration    float64
	Transition  Transition
	VisualRef   string
	Placeholder bool
	Overlay     string
	Start       float64
	End         float64
}

type SegmentStatus string

const (
	SegmentStatusOK       SegmentStatus = "ok"
	SegmentStatusFallback SegmentStatus = "used-fallback"
	SegmentStatusFailed   SegmentStatus = "failed"
)

// RenderedSegment is the per-scene intermediate clip. The actual duration
// follows the narration audio, which is authoritative over the target.
// Segments live in the job's temp dir and are removed after composition.
type RenderedSegment struct {
	SceneIndex int
	Path       string
	Duration   float64
	Status     SegmentStatus
}
