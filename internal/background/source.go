package background

import (
	"fmt"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
)

// Source selects the background image for each frame: either one static
// image, or the frames of an animation visited round-robin. The images are
// never modified through a Source.
type Source struct {
	frames   []*yuv.AYUV
	cursor   int
	animated bool
}

// Static returns a source that always yields img.
func Static(img *yuv.AYUV) (*Source, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no background image", types.ErrModeBackground)
	}
	return &Source{frames: []*yuv.AYUV{img}}, nil
}

// Animated returns a source that yields frames in order and wraps after the last.
func Animated(frames []*yuv.AYUV) (*Source, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: empty animation", types.ErrModeBackground)
	}
	for i, f := range frames {
		if f == nil {
			return nil, fmt.Errorf("%w: animation frame %d missing", types.ErrModeBackground, i)
		}
		if f.Width != frames[0].Width || f.Height != frames[0].Height {
			return nil, fmt.Errorf("%w: animation frame %d is %dx%d, frame 0 is %dx%d",
				types.ErrModeBackground, i, f.Width, f.Height, frames[0].Width, frames[0].Height)
		}
	}
	return &Source{frames: frames, animated: true}, nil
}

// Next returns the image for the current frame and advances the cursor.
func (s *Source) Next() *yuv.AYUV {
	img := s.frames[s.cursor]
	if s.animated {
		s.cursor = (s.cursor + 1) % len(s.frames)
	}
	return img
}

// IsAnimated reports whether the source cycles through several frames.
func (s *Source) IsAnimated() bool { return s.animated }

// Cursor returns the index of the frame the next call to Next yields.
func (s *Source) Cursor() int { return s.cursor }

// Len returns the number of frames.
func (s *Source) Len() int { return len(s.frames) }

// Size returns the geometry of the source images.
func (s *Source) Size() (int, int) { return s.frames[0].Width, s.frames[0].Height }
