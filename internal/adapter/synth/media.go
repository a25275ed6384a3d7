package synth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/clipforge/renderd/internal/port"
)

// HTTPMedia downloads user-selected media references (stock images or
// clips) to the job's working directory.
type HTTPMedia struct {
	client *http.Client
}

func NewHTTPMedia() *HTTPMedia {
	return &HTTPMedia{client: &http.Client{Timeout: 5 * time.Minute}}
}

func (m *HTTPMedia) Resolve(ctx context.Context, ref, outPath string) error {
	if !strings.HasPrefix(ref, "http://") && !strings.HasPrefix(ref, "https://") {
		return m.copyLocal(ref, outPath)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("media provider returned %d for %s", resp.StatusCode, ref)
	}

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(outPath)
		return fmt.Errorf("write media file: %w", err)
	}
	return out.Close()
}

// copyLocal supports pre-resolved catalog assets addressed by filesystem
// path.
func (m *HTTPMedia) copyLocal(ref, outPath string) error {
	in, err := os.Open(ref)
	if err != nil {
		return fmt.Errorf("open media %s: %w", ref, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create media file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy media: %w", err)
	}
	return out.Close()
}

var _ port.MediaResolver = (*HTTPMedia)(nil)
