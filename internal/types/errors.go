package types

import "errors"

// Sentinel errors shared by the frame-processing packages.
// Callers classify failures with errors.Is.
var (
	// ErrGeometry indicates non-positive or odd frame dimensions, or a buffer
	// whose length does not match the frame geometry.
	ErrGeometry = errors.New("bad geometry")

	// ErrModeBackground indicates a mode that needs a background source was
	// selected without one, or with a source of the wrong size.
	ErrModeBackground = errors.New("bad mode/background combination")

	// ErrTensorShape indicates a segmentation tensor whose dimensions, kind or
	// length do not agree.
	ErrTensorShape = errors.New("tensor shape mismatch")
)
