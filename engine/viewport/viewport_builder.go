package viewport

import (
	"github.com/Carmen-Shannon/oxy-gi/engine/camera"
	"github.com/Carmen-Shannon/oxy-gi/engine/gi"
	"github.com/google/uuid"
)

// ViewportBuilderOption is a functional option for configuring a viewport.
type ViewportBuilderOption func(v *viewport)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - ViewportBuilderOption: option function to apply
func WithTitle(title string) ViewportBuilderOption {
	return func(v *viewport) {
		v.title = title
	}
}

// WithSize sets the initial size.
//
// Parameters:
//   - width: initial width in pixels
//   - height: initial height in pixels
//
// Returns:
//   - ViewportBuilderOption: option function to apply
func WithSize(width, height int) ViewportBuilderOption {
	return func(v *viewport) {
		if width > 0 && height > 0 {
			v.width = width
			v.height = height
		}
	}
}

// WithCamera sets the camera rendered into the viewport.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - ViewportBuilderOption: option function to apply
func WithCamera(c camera.Camera) ViewportBuilderOption {
	return func(v *viewport) {
		v.camera = c
	}
}

// WithSettings sets the initial GI settings.
//
// Parameters:
//   - s: the settings
//
// Returns:
//   - ViewportBuilderOption: option function to apply
func WithSettings(s gi.Settings) ViewportBuilderOption {
	return func(v *viewport) {
		v.settings = s
	}
}

// WithHeadless skips window creation; the viewport renders offscreen.
//
// Parameters:
//   - headless: true to render without a window
//
// Returns:
//   - ViewportBuilderOption: option function to apply
func WithHeadless(headless bool) ViewportBuilderOption {
	return func(v *viewport) {
		v.headless = headless
	}
}

// WithID sets the render target set identity instead of a random one.
func WithID(id uuid.UUID) ViewportBuilderOption {
	return func(v *viewport) {
		v.id = id
	}
}
