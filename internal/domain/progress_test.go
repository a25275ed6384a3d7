package domain

import "testing"

func TestStageBandsAreContiguous(t *testing.T) {
	order := []Stage{
		StageSceneParsing,
		StageAudioGeneration,
		StageVideoComposition,
		StageThumbnail,
		StageFinalization,
	}

	prevHi := 0
	for _, stage := range order {
		lo, hi := stage.Band()
		if lo != prevHi {
			t.Errorf("stage %q starts at %d, want %d", stage, lo, prevHi)
		}
		if hi <= lo {
			t.Errorf("stage %q has empty band [%d,%d]", stage, lo, hi)
		}
		prevHi = hi
	}
	if prevHi != 100 {
		t.Errorf("last band ends at %d, want 100", prevHi)
	}
}

func TestStagePercent(t *testing.T) {
	tests := []struct {
		name  string
		stage Stage
		frac  float64
		want  int
	}{
		{"parsing start", StageSceneParsing, 0, 0},
		{"parsing done", StageSceneParsing, 1, 20},
		{"audio halfway", StageAudioGeneration, 0.5, 30},
		{"composition 80%", StageVideoComposition, 0.8, 64},
		{"thumbnail done", StageThumbnail, 1, 95},
		{"finalization done", StageFinalization, 1, 100},
		{"frac clamped low", StageAudioGeneration, -0.5, 20},
		{"frac clamped high", StageAudioGeneration, 2, 40},
		{"unknown stage", Stage("bogus"), 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.stage.Percent(tt.frac); got != tt.want {
				t.Errorf("Percent(%v) = %d, want %d", tt.frac, got, tt.want)
			}
		})
	}
}
