package port

import "context"

// VoiceSynthesizer converts scene text to a narration clip. Callers own
// the per-call timeout; on error the pipeline substitutes silent audio
// rather than failing the job.
type VoiceSynthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, language, outPath string) (seconds float64, err error)
}

// MediaResolver fetches a user-selected media reference to a local file.
// On error the pipeline substitutes a placeholder slate.
type MediaResolver interface {
	Resolve(ctx context.Context, ref, outPath string) error
}
