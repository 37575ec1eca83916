package types

import "fmt"

// FrameTask represents a single raw I420 frame sent to a segmentation engine
type FrameTask struct {
	Index int
	Data  []byte
}

// TensorKind describes how a segmentation model encodes its per-pixel output.
type TensorKind int

const (
	// Probability is a single channel holding the person probability.
	Probability TensorKind = iota + 1
	// Logits is two interleaved channels: background logit, person logit.
	Logits
)

// Channels returns the number of interleaved floats per tensor pixel.
func (k TensorKind) Channels() int {
	switch k {
	case Probability:
		return 1
	case Logits:
		return 2
	}
	return 0
}

func (k TensorKind) String() string {
	switch k {
	case Probability:
		return "probability"
	case Logits:
		return "logits"
	}
	return fmt.Sprintf("TensorKind(%d)", int(k))
}

// Tensor is the raw output of the segmentation collaborator at model resolution.
type Tensor struct {
	Width  int
	Height int
	Kind   TensorKind
	Data   []float32
}

// Validate checks that the tensor data matches its declared shape.
func (t Tensor) Validate() error {
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrTensorShape, t.Width, t.Height)
	}
	ch := t.Kind.Channels()
	if ch == 0 {
		return fmt.Errorf("%w: unknown kind %v", ErrTensorShape, t.Kind)
	}
	if want := t.Width * t.Height * ch; len(t.Data) != want {
		return fmt.Errorf("%w: %s tensor %dx%d needs %d values, got %d", ErrTensorShape, t.Kind, t.Width, t.Height, want, len(t.Data))
	}
	return nil
}
