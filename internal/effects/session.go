// Package effects composites a segmented camera frame over a replacement
// background. A Session carries everything that survives between frames:
// the mask buffers, the snow population, the animation cursor and the
// blurred copy of the virtual background.
package effects

import (
	"fmt"
	"math"

	"github.com/andresmejia3/backdrop/internal/background"
	"github.com/andresmejia3/backdrop/internal/blur"
	"github.com/andresmejia3/backdrop/internal/mask"
	"github.com/andresmejia3/backdrop/internal/snow"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Config holds the tunables of a render session.
type Config struct {
	Width  int
	Height int

	SigmaMask       float64
	SigmaBackground float64

	SnowCount int
	SnowSeed  uint64
	// Scale factors applied to the normalized background planes in the two
	// snow modes.
	SnowScale     float64
	SnowBlurScale float64

	AnimationLength int
}

// DefaultConfig returns the standard tunables for a width x height stream.
func DefaultConfig(width, height int) Config {
	return Config{
		Width:           width,
		Height:          height,
		SigmaMask:       mask.DefaultSigmaMask,
		SigmaBackground: mask.DefaultSigmaBackground,
		SnowCount:       snow.DefaultCount,
		SnowSeed:        1,
		SnowScale:       255,
		SnowBlurScale:   255,
		AnimationLength: background.DefaultSequenceLength,
	}
}

// Session processes the frames of one stream in order. It is not safe for
// concurrent use.
type Session struct {
	ID uuid.UUID

	cfg      Config
	mode     Mode
	strategy backgroundStrategy

	builder *mask.Builder
	snow    *snow.Field
	source  *background.Source

	// Blurred working copy of the background source. Loaded images are
	// never written to.
	work       *yuv.AYUV
	blurredFor *yuv.AYUV
	planes     [3][]float32
	scratch    []float32

	frames int
	log    *logrus.Entry
}

// NewSession validates cfg and allocates the per-frame buffers.
func NewSession(cfg Config) (*Session, error) {
	if err := yuv.CheckGeometry(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	if cfg.SnowCount < 0 {
		return nil, fmt.Errorf("snow count must not be negative, got %d", cfg.SnowCount)
	}
	builder, err := mask.NewBuilder(cfg.Width, cfg.Height, cfg.SigmaMask, cfg.SigmaBackground)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	s := &Session{
		ID:      id,
		cfg:     cfg,
		builder: builder,
		snow:    snow.NewField(cfg.Width, cfg.Height, cfg.SnowCount, cfg.SnowSeed),
		log: logrus.WithFields(logrus.Fields{
			"session": id.String(),
		}),
	}
	s.log.WithFields(logrus.Fields{
		"function": "NewSession",
		"width":    cfg.Width,
		"height":   cfg.Height,
	}).Info("Render session created")
	return s, nil
}

// Config returns the session tunables.
func (s *Session) Config() Config { return s.cfg }

// Mode returns the active mode.
func (s *Session) Mode() Mode { return s.mode }

// Frames returns the number of frames processed so far.
func (s *Session) Frames() int { return s.frames }

// Snow exposes the particle population.
func (s *Session) Snow() *snow.Field { return s.snow }

// SetMode switches the active mode. Modes that need a background source may
// be selected before one is set; Process reports the missing source.
func (s *Session) SetMode(m Mode) error {
	if m < Bypass || m > ExternalImage {
		return fmt.Errorf("unknown mode %d", int(m))
	}
	s.mode = m
	s.strategy = strategyFor(m, s.cfg)
	s.log.WithFields(logrus.Fields{
		"function": "SetMode",
		"mode":     m.String(),
	}).Debug("Mode changed")
	return nil
}

// SetBackground replaces the background source. A nil source clears it.
func (s *Session) SetBackground(src *background.Source) error {
	if src != nil {
		if w, h := src.Size(); w != s.cfg.Width || h != s.cfg.Height {
			return fmt.Errorf("%w: background is %dx%d, stream is %dx%d", types.ErrModeBackground, w, h, s.cfg.Width, s.cfg.Height)
		}
	}
	s.source = src
	s.blurredFor = nil
	return nil
}

// Process composites one I420 frame in place using the segmentation tensor
// computed for it.
func (s *Session) Process(data []byte, t types.Tensor) error {
	frame, err := yuv.NewFrame(data, s.cfg.Width, s.cfg.Height)
	if err != nil {
		return err
	}
	if s.strategy == nil {
		s.frames++
		return nil
	}

	l := &layers{}
	if s.mode.NeedsSource() {
		if s.source == nil {
			return fmt.Errorf("%w: mode %s needs a background source", types.ErrModeBackground, s.mode)
		}
		l.image = s.source.Next()
		if s.mode == VirtualBackgroundBlurred {
			l.image = s.blurredSource(l.image)
		}
	}

	if err := s.builder.Build(t, frame, s.mode.blursPlanes()); err != nil {
		return err
	}
	l.planeY, l.planeU, l.planeV = s.builder.Background()

	if s.mode.IsSnow() {
		s.snow.Step()
		s.snow.Render(l.planeY, l.planeU, l.planeV, frame)
	}

	composite(frame, s.builder.Alpha(), s.strategy, l)
	s.frames++
	return nil
}

// blurredSource returns a blurred copy of img. A static image is blurred once
// and reused; animation frames change every call and are blurred each time.
func (s *Session) blurredSource(img *yuv.AYUV) *yuv.AYUV {
	if img == s.blurredFor && !s.source.IsAnimated() {
		return s.work
	}
	if s.work == nil {
		s.work = img.Clone()
		n := img.Len()
		for c := range s.planes {
			s.planes[c] = make([]float32, n)
		}
		s.scratch = make([]float32, n)
	} else {
		s.work.CopyFrom(img)
	}

	py, pu, pv := s.planes[0], s.planes[1], s.planes[2]
	for i := 0; i < img.Len(); i++ {
		y, u, v := img.YUV(i)
		py[i], pu[i], pv[i] = float32(y)/255, float32(u)/255, float32(v)/255
	}
	for _, p := range s.planes {
		blur.FastGaussianBlur(p, s.scratch, img.Width, img.Height, s.cfg.SigmaBackground)
	}
	for i := 0; i < img.Len(); i++ {
		s.work.SetYUV(i, toByte(py[i]), toByte(pu[i]), toByte(pv[i]))
	}

	s.blurredFor = img
	s.log.WithFields(logrus.Fields{
		"function": "blurredSource",
		"animated": s.source.IsAnimated(),
	}).Debug("Virtual background blurred")
	return s.work
}

func toByte(v float32) byte {
	return yuv.Clamp8(math.Round(float64(v) * 255))
}
