// Package background loads the replacement images composited behind the
// subject: raw AYUV files, zstd compressed AYUV files, common image formats,
// and numbered animation sequences.
package background

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Recognized file suffixes.
const (
	ExtAYUV     = ".ayuv"
	ExtAYUVZstd = ".ayuv.zst"
)

// DefaultSequenceLength is the number of frames in an animated background.
const DefaultSequenceLength = 750

var encPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			panic(err)
		}
		return enc
	},
}

var decPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(err)
		}
		return dec
	},
}

// Load reads the background at path and returns it as a width x height AYUV
// image. Raw AYUV files must already have that geometry; decoded images are
// rescaled to it.
func Load(path string, width, height int) (*yuv.AYUV, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read background: %w", err)
	}

	var img *yuv.AYUV
	switch lower := strings.ToLower(path); {
	case strings.HasSuffix(lower, ExtAYUVZstd):
		raw, derr := Decompress(data)
		if derr != nil {
			return nil, fmt.Errorf("failed to decompress %s: %w", path, derr)
		}
		img, err = yuv.NewAYUV(raw, width, height)
	case strings.HasSuffix(lower, ExtAYUV):
		img, err = yuv.NewAYUV(data, width, height)
	default:
		img, err = DecodeImage(bytes.NewReader(data), width, height)
	}
	if err != nil {
		return nil, fmt.Errorf("background %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Load",
		"path":     path,
		"width":    width,
		"height":   height,
	}).Debug("Background loaded")
	return img, nil
}

// DecodeImage decodes a PNG, JPEG, WebP, BMP or TIFF image, scales it to
// width x height with a bilinear filter and converts it to AYUV.
func DecodeImage(r io.Reader, width, height int) (*yuv.AYUV, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: dimensions %dx%d", types.ErrGeometry, width, height)
	}
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)

	pix := make([]byte, width*height*yuv.AYUVStride)
	if err := yuv.RGBAToAYUV(pix, dst.Pix); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "DecodeImage",
		"format":   format,
		"source":   src.Bounds().Size().String(),
	}).Debug("Image converted to AYUV")
	return yuv.NewAYUV(pix, width, height)
}

// LoadSequence loads frames 0..n-1 of an animated background from dir. Each
// frame is N.ayuv or N.ayuv.zst.
func LoadSequence(dir string, n, width, height int) ([]*yuv.AYUV, error) {
	if n <= 0 {
		return nil, fmt.Errorf("animation length must be positive, got %d", n)
	}
	frames := make([]*yuv.AYUV, n)
	for i := range frames {
		path, err := sequencePath(dir, i)
		if err != nil {
			return nil, err
		}
		img, err := Load(path, width, height)
		if err != nil {
			return nil, err
		}
		frames[i] = img
	}
	logrus.WithFields(logrus.Fields{
		"function": "LoadSequence",
		"dir":      dir,
		"frames":   n,
	}).Info("Animated background loaded")
	return frames, nil
}

func sequencePath(dir string, i int) (string, error) {
	base := filepath.Join(dir, strconv.Itoa(i))
	for _, ext := range []string{ExtAYUV, ExtAYUVZstd} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("animation frame %d not found in %s", i, dir)
}

// Save writes img as raw AYUV, zstd compressing it when path ends in .ayuv.zst.
func Save(path string, img *yuv.AYUV) error {
	data := img.Pix
	if strings.HasSuffix(strings.ToLower(path), ExtAYUVZstd) {
		data = Compress(img.Pix)
	}
	return os.WriteFile(path, data, 0644)
}

// Compress returns data as a single zstd frame.
func Compress(data []byte) []byte {
	enc := encPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(data, make([]byte, 0, len(data)/4))
	encPool.Put(enc)
	return out
}

// Decompress inflates zstd compressed data.
func Decompress(data []byte) ([]byte, error) {
	dec := decPool.Get().(*zstd.Decoder)
	out, err := dec.DecodeAll(data, nil)
	decPool.Put(dec)
	return out, err
}
