package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/clipforge/renderd/internal/domain"
	"github.com/clipforge/renderd/internal/port"
)

// DurationProber measures a written audio clip when the provider does not
// report its length. The ffmpeg compositor satisfies this.
type DurationProber interface {
	Probe(ctx context.Context, path string) (*domain.ProbeResult, error)
}

// HTTPVoice talks to a text-to-speech service over JSON. The caller owns
// timeouts via ctx; this client sets no deadline of its own beyond a
// generous transport cap.
type HTTPVoice struct {
	baseURL string
	client  *http.Client
	prober  DurationProber
}

func NewHTTPVoice(baseURL string, prober DurationProber) *HTTPVoice {
	return &HTTPVoice{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
		prober:  prober,
	}
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	VoiceID  string `json:"voice_id"`
	Language string `json:"language"`
}

func (v *HTTPVoice) Synthesize(ctx context.Context, text, voiceID, language, outPath string) (float64, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, VoiceID: voiceID, Language: language})
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/synthesize", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("voice provider: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return 0, fmt.Errorf("voice provider returned %d: %s", resp.StatusCode, snippet)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create audio file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(outPath)
		return 0, fmt.Errorf("write audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("close audio file: %w", err)
	}

	// Prefer the provider-reported length; fall back to probing the clip.
	if raw := resp.Header.Get("X-Duration-Seconds"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds > 0 {
			return seconds, nil
		}
	}
	if v.prober != nil {
		if probe, err := v.prober.Probe(ctx, outPath); err == nil {
			return probe.Duration(), nil
		}
	}
	return 0, nil
}

var _ port.VoiceSynthesizer = (*HTTPVoice)(nil)
