// Package blur approximates a Gaussian blur of a single channel float field
// with three successive box blurs (Kutskir's fast Gaussian). Each box pass is
// separable: a horizontal running sum followed by a vertical one, both
// replicating the edge sample into off-frame window positions.
package blur

import (
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Passes is the number of box blurs used to approximate one Gaussian.
const Passes = 3

// Below this many samples a pass runs on the calling goroutine.
const parallelThreshold = 64 * 64

// colSumsPool recycles the per-chunk column accumulators of the vertical pass.
var colSumsPool = sync.Pool{
	New: func() interface{} { return make([]float32, 0, 1024) },
}

// BoxRadii converts a Gaussian standard deviation into n box half-widths
// whose successive application approximates that Gaussian.
func BoxRadii(sigma float64, n int) []int {
	variance12 := 12 * sigma * sigma
	wIdeal := math.Sqrt(variance12/float64(n) + 1)
	wl := int(math.Floor(wIdeal))
	if wl%2 == 0 {
		wl--
	}
	wu := wl + 2

	mIdeal := (variance12 - float64(n*wl*wl) - float64(4*n*wl) - float64(3*n)) / float64(-4*wl-4)
	m := int(math.Round(mIdeal))

	radii := make([]int, n)
	for i := range radii {
		if i < m {
			radii[i] = (wl - 1) / 2
		} else {
			radii[i] = (wu - 1) / 2
		}
	}
	return radii
}

// FastGaussianBlur blurs field in place. scratch must be at least as long as
// field and is clobbered. A non-positive sigma leaves field untouched.
func FastGaussianBlur(field, scratch []float32, w, h int, sigma float64) {
	mustGeometry(field, scratch, w, h)
	if sigma <= 0 || math.IsNaN(sigma) {
		return
	}
	for _, r := range BoxRadii(sigma, Passes) {
		if r <= 0 {
			continue
		}
		BoxBlurPass(field, scratch, w, h, r)
	}
}

// BoxBlurPass applies one box blur of half-width r. The horizontal pass reads
// in and writes out, the vertical pass reads out and writes back into in, so
// the blurred result lands in in.
func BoxBlurPass(in, out []float32, w, h, r int) {
	mustGeometry(in, out, w, h)
	if r <= 0 {
		return
	}
	parallel(h, w*h, func(lo, hi int) {
		horizontal(in, out, w, r, lo, hi)
	})
	parallel(w, w*h, func(lo, hi int) {
		sums := colSumsPool.Get().([]float32)
		if cap(sums) < hi-lo {
			sums = make([]float32, hi-lo)
		}
		vertical(out, in, w, h, r, lo, hi, sums[:hi-lo])
		colSumsPool.Put(sums)
	})
}

// horizontal blurs rows [y0, y1) of in into out.
func horizontal(in, out []float32, w, r, y0, y1 int) {
	iarr := 1 / float32(r+r+1)
	for y := y0; y < y1; y++ {
		src := in[y*w : y*w+w]
		dst := out[y*w : y*w+w]

		var sum float32
		for k := -r; k <= r; k++ {
			sum += src[clamp(k, w)]
		}
		for x := 0; x < w; x++ {
			dst[x] = sum * iarr
			// Slide window: add entering sample, drop leaving sample
			sum += src[clamp(x+r+1, w)] - src[clamp(x-r, w)]
		}
	}
}

// vertical blurs columns [x0, x1) of in into out. It walks the image row by
// row and keeps one running sum per column for cache locality.
func vertical(in, out []float32, w, h, r, x0, x1 int, sums []float32) {
	iarr := 1 / float32(r+r+1)
	for i := range sums {
		sums[i] = 0
	}
	for k := -r; k <= r; k++ {
		row := in[clamp(k, h)*w:]
		for x := x0; x < x1; x++ {
			sums[x-x0] += row[x]
		}
	}
	for y := 0; y < h; y++ {
		dst := out[y*w:]
		add := in[clamp(y+r+1, h)*w:]
		rem := in[clamp(y-r, h)*w:]
		for x := x0; x < x1; x++ {
			s := sums[x-x0]
			dst[x] = s * iarr
			sums[x-x0] = s + add[x] - rem[x]
		}
	}
}

// parallel splits [0, n) into contiguous chunks, one per available CPU.
// Chunks never overlap, so callers writing disjoint rows or columns need no locking.
func parallel(n, work int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 || work < parallelThreshold {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func mustGeometry(a, b []float32, w, h int) {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("blur: invalid dimensions %dx%d", w, h))
	}
	if len(a) < w*h || len(b) < w*h {
		panic(fmt.Sprintf("blur: buffers of %d and %d samples cannot hold %dx%d", len(a), len(b), w, h))
	}
}
