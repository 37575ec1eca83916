package cmd

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/backdrop/internal/background"
	"github.com/andresmejia3/backdrop/internal/types"
	"github.com/andresmejia3/backdrop/internal/yuv"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func sampleRGBA() []byte {
	return []byte{
		255, 0, 0, 255, 0, 255, 0, 128,
		0, 0, 255, 0, 200, 200, 200, 255,
	}
}

func TestConvert_RGBAToAYUV(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "bg.rgba"), filepath.Join(dir, "bg.ayuv")
	writeFile(t, in, sampleRGBA())

	opts := convertOptions{Width: 2, Height: 2}
	if err := validateConvertFlags(in, out, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if opts.From != FormatRGBA || opts.To != FormatAYUV {
		t.Fatalf("Expected inferred rgba -> ayuv, got %s -> %s", opts.From, opts.To)
	}
	if err := convertFile(in, out, opts); err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}

	want := make([]byte, 16)
	if err := yuv.RGBAToAYUV(want, sampleRGBA()); err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, out); !bytes.Equal(got, want) {
		t.Errorf("AYUV output = %v, want %v", got, want)
	}
}

func TestConvert_RGBAToPackedYUV(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "bg.rgba"), filepath.Join(dir, "bg.yuv")
	writeFile(t, in, sampleRGBA())

	opts := convertOptions{Width: 2, Height: 2}
	if err := validateConvertFlags(in, out, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if err := convertFile(in, out, opts); err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}
	got := readFile(t, out)
	if len(got) != 12 {
		t.Fatalf("Expected 3 bytes per pixel, got %d bytes", len(got))
	}
	y, u, v := yuv.RGBToYUV8(255, 0, 0)
	if got[0] != y || got[1] != u || got[2] != v {
		t.Errorf("First pixel = %v, want [%d %d %d]", got[:3], y, u, v)
	}
}

func TestConvert_AYUVToRGBAAndPNG(t *testing.T) {
	dir := t.TempDir()
	ayuv := make([]byte, 16)
	if err := yuv.RGBAToAYUV(ayuv, sampleRGBA()); err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "bg.ayuv.zst")
	writeFile(t, in, background.Compress(ayuv))

	rawOut := filepath.Join(dir, "bg.rgba")
	opts := convertOptions{Width: 2, Height: 2}
	if err := validateConvertFlags(in, rawOut, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if err := convertFile(in, rawOut, opts); err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}
	rgba := readFile(t, rawOut)
	if len(rgba) != 16 {
		t.Fatalf("Expected 16 RGBA bytes, got %d", len(rgba))
	}
	for i := 3; i < 16; i += 4 {
		if rgba[i] != sampleRGBA()[i] {
			t.Errorf("Alpha at %d = %d, want %d", i, rgba[i], sampleRGBA()[i])
		}
	}

	pngOut := filepath.Join(dir, "bg.png")
	opts = convertOptions{Width: 2, Height: 2}
	if err := validateConvertFlags(in, pngOut, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if err := convertFile(in, pngOut, opts); err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(readFile(t, pngOut)))
	if err != nil {
		t.Fatalf("Output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 2 || img.Bounds().Dy() != 2 {
		t.Errorf("Unexpected PNG size %v", img.Bounds())
	}
}

func TestConvert_ImageToCompressedAYUV(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			src.Set(x, y, color.RGBA{R: 0, G: 0, B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	in, out := filepath.Join(dir, "bg.png"), filepath.Join(dir, "bg.ayuv.zst")
	writeFile(t, in, buf.Bytes())

	opts := convertOptions{Width: 4, Height: 2}
	if err := validateConvertFlags(in, out, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if opts.From != FormatImage || !opts.Zstd {
		t.Fatalf("Expected image input with zstd output, got %+v", opts)
	}
	if err := convertFile(in, out, opts); err != nil {
		t.Fatalf("convertFile failed: %v", err)
	}

	img, err := background.Load(out, 4, 2)
	if err != nil {
		t.Fatalf("Converted background does not load: %v", err)
	}
	for i := 0; i < img.Len(); i++ {
		if a, y, u, v := img.At(i); a != 255 || y != 16 || u != 128 || v != 128 {
			t.Fatalf("Pixel %d = (%d,%d,%d,%d), want black (255,16,128,128)", i, a, y, u, v)
		}
	}
}

func TestConvert_WrongInputSize(t *testing.T) {
	dir := t.TempDir()
	in, out := filepath.Join(dir, "bg.rgba"), filepath.Join(dir, "bg.ayuv")
	writeFile(t, in, sampleRGBA())

	opts := convertOptions{Width: 4, Height: 4}
	if err := validateConvertFlags(in, out, &opts); err != nil {
		t.Fatalf("validateConvertFlags failed: %v", err)
	}
	if err := convertFile(in, out, opts); err == nil {
		t.Fatal("Expected size mismatch error")
	}
}

func TestValidateConvertFlags(t *testing.T) {
	tests := []struct {
		name    string
		in, out string
		opts    convertOptions
		is      error
	}{
		{name: "UnsupportedPair", in: "a.rgba", out: "b.png", opts: convertOptions{Width: 2, Height: 2}},
		{name: "UnknownOutput", in: "a.rgba", out: "b.bin", opts: convertOptions{Width: 2, Height: 2}},
		{name: "ZeroSize", in: "a.rgba", out: "b.ayuv", opts: convertOptions{Width: 0, Height: 2}, is: types.ErrGeometry},
		{name: "CompressedPNG", in: "a.ayuv", out: "b.png", opts: convertOptions{Width: 2, Height: 2, Zstd: true}},
		{name: "SamePath", in: "a.rgba", out: "a.rgba", opts: convertOptions{From: FormatRGBA, To: FormatYUV, Width: 2, Height: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.opts
			err := validateConvertFlags(tt.in, tt.out, &opts)
			if err == nil {
				t.Fatal("Expected an error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Expected %v, got %v", tt.is, err)
			}
		})
	}
}
