package domain

import "fmt"

// PlatformProfile bundles the output parameters for a target destination,
// e.g. vertical short-form vs. horizontal long-form. Encoding parameters
// are uniform across profiles; only geometry and frame rate vary.
type PlatformProfile struct {
	Name         string
	Width        int
	Height       int
	FPS          int
	VideoBitrate string
	AudioBitrate string
	CRF          int
	Preset       string
}

// Resolution formats the profile geometry as an ffmpeg size argument.
func (p PlatformProfile) Resolution() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

func (p PlatformProfile) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("profile %q: invalid resolution %dx%d", p.Name, p.Width, p.Height)
	}
	if p.FPS <= 0 {
		return fmt.Errorf("profile %q: invalid fps %d", p.Name, p.FPS)
	}
	return nil
}
