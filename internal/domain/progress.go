package domain

import (
	"math"
	"time"
)

// Stage subdivides PROCESSING for progress reporting only; it is not a
// separate persisted state. Order is fixed and monotonic.
type Stage string

const (
	StageSceneParsing     Stage = "scene_parsing"
	StageAudioGeneration  Stage = "audio_generation"
	StageVideoComposition Stage = "video_composition"
	StageThumbnail        Stage = "thumbnail_generation"
	StageFinalization     Stage = "finalization"
)

var stageBands = map[Stage][2]int{
	StageSceneParsing:     {0, 20},
	StageAudioGeneration:  {20, 40},
	StageVideoComposition: {40, 70},
	StageThumbnail:        {70, 95},
	StageFinalization:     {95, 100},
}

// Band returns the overall percentage range covered by the stage.
func (s Stage) Band() (lo, hi int) {
	b, ok := stageBands[s]
	if !ok {
		return 0, 0
	}
	return b[0], b[1]
}

// Percent maps a completion fraction within the stage onto the overall
// job percentage.
func (s Stage) Percent(frac float64) int {
	lo, hi := s.Band()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lo + int(math.Round(frac*float64(hi-lo)))
}

// ProgressEvent is one frame on the job's progress channel. Events are
// emitted at least once per stage transition; delivery is at-least-once
// and consumers apply latest-state-wins.
type ProgressEvent struct {
	JobID      string    `json:"job_id"`
	Stage      Stage     `json:"stage"`
	Percentage int       `json:"percentage"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	ETASeconds int       `json:"eta_seconds,omitempty"`
}
