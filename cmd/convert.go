package cmd

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/backdrop/internal/background"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
	"github.com/spf13/cobra"
)

// Raw and image formats understood by convert.
const (
	FormatRGBA  = "rgba"
	FormatAYUV  = "ayuv"
	FormatYUV   = "yuv"
	FormatPNG   = "png"
	FormatImage = "image"
)

type convertOptions struct {
	From   string
	To     string
	Width  int
	Height int
	Zstd   bool
}

var convertOpts convertOptions

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output>",
	Short: "Convert backgrounds between RGBA, AYUV, packed YUV and image files",
	Long: `Converts background assets. Supported conversions:
  rgba  -> ayuv   raw RGBA to raw AYUV
  image -> ayuv   PNG/JPEG/WebP/BMP/TIFF scaled to the frame size
  ayuv  -> rgba   raw AYUV to raw RGBA
  ayuv  -> png    raw AYUV to a PNG image
  rgba  -> yuv    raw RGBA to packed YUV (alpha dropped)
Formats are inferred from the file extensions when --from/--to are omitted.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		opts := convertOpts
		if err := validateConvertFlags(args[0], args[1], &opts); err != nil {
			return err
		}
		if err := convertFile(args[0], args[1], opts); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✅ %s -> %s (%s to %s)\n", args[0], args[1], opts.From, opts.To)
		return nil
	},
}

func init() {
	convertCmd.Flags().StringVar(&convertOpts.From, "from", "", "Input format: rgba, ayuv or image")
	convertCmd.Flags().StringVar(&convertOpts.To, "to", "", "Output format: ayuv, rgba, png or yuv")
	convertCmd.Flags().IntVarP(&convertOpts.Width, "width", "W", 640, "Image width")
	convertCmd.Flags().IntVarP(&convertOpts.Height, "height", "H", 480, "Image height")
	convertCmd.Flags().BoolVar(&convertOpts.Zstd, "zstd", false, "zstd compress raw output (implied by a .zst suffix)")
	rootCmd.AddCommand(convertCmd)
}

var convertPairs = map[[2]string]bool{
	{FormatRGBA, FormatAYUV}:  true,
	{FormatImage, FormatAYUV}: true,
	{FormatAYUV, FormatRGBA}:  true,
	{FormatAYUV, FormatPNG}:   true,
	{FormatRGBA, FormatYUV}:   true,
}

func inferFormat(path string) string {
	lower := strings.TrimSuffix(strings.ToLower(path), ".zst")
	switch {
	case strings.HasSuffix(lower, ".ayuv"):
		return FormatAYUV
	case strings.HasSuffix(lower, ".rgba"):
		return FormatRGBA
	case strings.HasSuffix(lower, ".yuv"):
		return FormatYUV
	case strings.HasSuffix(lower, ".png"):
		return FormatPNG
	}
	return ""
}

func validateConvertFlags(in, out string, opts *convertOptions) error {
	if opts.From == "" {
		if opts.From = inferFormat(in); opts.From == "" || opts.From == FormatPNG {
			opts.From = FormatImage
		}
	}
	if opts.To == "" {
		opts.To = inferFormat(out)
	}
	opts.From, opts.To = strings.ToLower(opts.From), strings.ToLower(opts.To)

	if !convertPairs[[2]string{opts.From, opts.To}] {
		return fmt.Errorf("unsupported conversion %q -> %q", opts.From, opts.To)
	}
	// Stills need not be even sized, so only the sign is checked here
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", types.ErrGeometry, opts.Width, opts.Height)
	}
	if strings.HasSuffix(strings.ToLower(out), ".zst") {
		opts.Zstd = true
	}
	if opts.Zstd && opts.To == FormatPNG {
		return fmt.Errorf("png output cannot be zstd compressed")
	}

	inAbs, _ := filepath.Abs(in)
	outAbs, _ := filepath.Abs(out)
	if inAbs == outAbs {
		return fmt.Errorf("input and output paths must be different to prevent file corruption")
	}
	return nil
}

// convertFile performs one validated conversion.
func convertFile(in, out string, opts convertOptions) error {
	w, h := opts.Width, opts.Height

	var result []byte
	switch opts.From {
	case FormatImage:
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		img, err := background.DecodeImage(f, w, h)
		if err != nil {
			return err
		}
		result = img.Pix

	case FormatAYUV:
		raw, err := readRaw(in)
		if err != nil {
			return err
		}
		img, err := yuv.NewAYUV(raw, w, h)
		if err != nil {
			return fmt.Errorf("ayuv input %s: %w", in, err)
		}
		rgba := make([]byte, len(img.Pix))
		if err := yuv.AYUVToRGBA(rgba, img.Pix); err != nil {
			return err
		}
		if opts.To == FormatPNG {
			return writePNG(out, rgba, w, h)
		}
		result = rgba

	case FormatRGBA:
		src, err := readRaw(in)
		if err != nil {
			return err
		}
		if want := w * h * 4; len(src) != want {
			return fmt.Errorf("rgba input %s has %d bytes, want %d for %dx%d", in, len(src), want, w, h)
		}
		if opts.To == FormatYUV {
			if result, err = yuv.RGBAToPackedYUV(src); err != nil {
				return err
			}
			break
		}
		result = make([]byte, len(src))
		if err := yuv.RGBAToAYUV(result, src); err != nil {
			return err
		}
	}

	if opts.Zstd {
		result = background.Compress(result)
	}
	return os.WriteFile(out, result, 0644)
}

func readRaw(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".zst") {
		return background.Decompress(data)
	}
	return data, nil
}

func writePNG(path string, rgba []byte, w, h int) error {
	img := &image.NRGBA{Pix: rgba, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
