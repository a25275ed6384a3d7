package service

import (
	"math"
	"strings"

	"github.com/clipforge/renderd/internal/domain"
)

// SceneOptions configures the scene renderer. Zero values fall back to
// the defaults below, so an empty options struct is usable in tests.
type SceneOptions struct {
	WordsPerSecond  float64
	MinSceneSeconds float64
	MaxSceneSeconds float64

	// Transitions is cycled across scene boundaries; empty means every
	// scene fades in.
	Transitions []domain.Transition

	// MediaByScene maps a final scene index to a user-selected media ref.
	// Scenes without an entry get a deterministic placeholder.
	MediaByScene map[int]string
}

const (
	defaultWordsPerSecond  = 2.5
	defaultMinSceneSeconds = 2.0
	defaultMaxSceneSeconds = 10.0
)

func (o SceneOptions) withDefaults() SceneOptions {
	if o.WordsPerSecond <= 0 {
		o.WordsPerSecond = defaultWordsPerSecond
	}
	if o.MinSceneSeconds <= 0 {
		o.MinSceneSeconds = defaultMinSceneSeconds
	}
	if o.MaxSceneSeconds <= o.MinSceneSeconds {
		o.MaxSceneSeconds = defaultMaxSceneSeconds
	}
	return o
}

// sceneUnit is an intermediate grouping of sentences with an estimated
// spoken duration. Sentence boundaries are kept so oversized units can be
// split back apart at the nearest boundary.
type sceneUnit struct {
	sentences []string
	estimate  float64
}

// RenderScenes splits normalized script text into an ordered, gapless
// scene sequence. It is pure and deterministic: identical inputs produce
// an identical scene list.
//
// Sentences are timed at the configured words-per-second rate. Fragments
// estimated below half the minimum duration are merged with a neighbor;
// units above the maximum are split at sentence boundaries (or evenly by
// words for a single runaway sentence). Whatever survives is clamped into
// the [min, max] band and offsets are computed as a prefix sum.
func RenderScenes(scriptText string, opts SceneOptions) ([]domain.Scene, error) {
	opts = opts.withDefaults()

	sentences := splitSentences(scriptText)
	if len(sentences) == 0 {
		return nil, domain.ErrEmptyScript
	}

	units := make([]sceneUnit, 0, len(sentences))
	for _, s := range sentences {
		units = append(units, sceneUnit{
			sentences: []string{s},
			estimate:  estimateSpoken(s, opts.WordsPerSecond),
		})
	}

	units = mergeShort(units, opts.MinSceneSeconds/2)
	units = splitLong(units, opts.MaxSceneSeconds, opts.WordsPerSecond)

	scenes := make([]domain.Scene, len(units))
	cursor := 0.0
	for i, u := range units {
		duration := clamp(u.estimate, opts.MinSceneSeconds, opts.MaxSceneSeconds)
		scene := domain.Scene{
			Index:      i,
			Text:       strings.Join(u.sentences, " "),
			Duration:   duration,
			Transition: transitionFor(i, opts.Transitions),
			Start:      cursor,
			End:        cursor + duration,
		}
		if ref, ok := opts.MediaByScene[i]; ok && ref != "" {
			scene.VisualRef = ref
		} else {
			scene.Placeholder = true
			scene.Overlay = scene.Text
		}
		cursor = scene.End
		scenes[i] = scene
	}

	return scenes, nil
}

// splitSentences breaks text on sentence terminators and newlines,
// dropping empty pieces.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		switch r {
		case '\n':
			flush()
		case '.', '!', '?':
			b.WriteRune(r)
			// Consume runs of terminators ("..." or "?!") as one boundary.
			if i+1 >= len(runes) || !isTerminator(runes[i+1]) {
				flush()
			}
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func estimateSpoken(s string, wps float64) float64 {
	return float64(len(strings.Fields(s))) / wps
}

// mergeShort folds fragments below the threshold into the previous unit,
// or into the next one when the fragment leads the script.
func mergeShort(units []sceneUnit, threshold float64) []sceneUnit {
	merged := make([]sceneUnit, 0, len(units))
	for _, u := range units {
		if u.estimate < threshold && len(merged) > 0 {
			last := &merged[len(merged)-1]
			last.sentences = append(last.sentences, u.sentences...)
			last.estimate += u.estimate
			continue
		}
		merged = append(merged, u)
	}
	if len(merged) > 1 && merged[0].estimate < threshold {
		merged[1].sentences = append(merged[0].sentences, merged[1].sentences...)
		merged[1].estimate += merged[0].estimate
		merged = merged[1:]
	}
	return merged
}

// splitLong breaks oversized units apart: multi-sentence units are packed
// greedily at sentence boundaries; a single sentence longer than max is
// divided evenly by words.
func splitLong(units []sceneUnit, max, wps float64) []sceneUnit {
	out := make([]sceneUnit, 0, len(units))
	for _, u := range units {
		if u.estimate <= max {
			out = append(out, u)
			continue
		}
		if len(u.sentences) > 1 {
			out = append(out, packSentences(u.sentences, max, wps)...)
			continue
		}
		out = append(out, splitSentenceByWords(u.sentences[0], max, wps)...)
	}
	return out
}

func packSentences(sentences []string, max, wps float64) []sceneUnit {
	var out []sceneUnit
	current := sceneUnit{}
	for _, s := range sentences {
		est := estimateSpoken(s, wps)
		if len(current.sentences) > 0 && current.estimate+est > max {
			out = append(out, current)
			current = sceneUnit{}
		}
		if est > max {
			if len(current.sentences) > 0 {
				out = append(out, current)
				current = sceneUnit{}
			}
			out = append(out, splitSentenceByWords(s, max, wps)...)
			continue
		}
		current.sentences = append(current.sentences, s)
		current.estimate += est
	}
	if len(current.sentences) > 0 {
		out = append(out, current)
	}
	return out
}

func splitSentenceByWords(sentence string, max, wps float64) []sceneUnit {
	words := strings.Fields(sentence)
	parts := int(math.Ceil(estimateSpoken(sentence, wps) / max))
	if parts < 2 {
		parts = 2
	}
	per := (len(words) + parts - 1) / parts
	if per < 1 {
		per = 1
	}

	var out []sceneUnit
	for start := 0; start < len(words); start += per {
		end := start + per
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		out = append(out, sceneUnit{
			sentences: []string{chunk},
			estimate:  float64(end-start) / wps,
		})
	}
	return out
}

func transitionFor(i int, list []domain.Transition) domain.Transition {
	if len(list) == 0 {
		return domain.TransitionFade
	}
	t := list[i%len(list)]
	if !t.Valid() {
		return domain.TransitionFade
	}
	return t
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
