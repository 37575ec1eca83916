package effects

import (
	"fmt"
	"strings"
)

// Mode selects what replaces the background of a frame.
type Mode int

const (
	Bypass Mode = iota
	White
	Black
	BlurBackground
	VirtualBackground
	VirtualBackgroundBlurred
	Snowflakes
	SnowflakesBlur
	ExternalImage
)

var modeNames = [...]string{
	Bypass:                   "bypass",
	White:                    "white",
	Black:                    "black",
	BlurBackground:           "blur-background",
	VirtualBackground:        "virtual-background",
	VirtualBackgroundBlurred: "virtual-background-blurred",
	Snowflakes:               "snowflakes",
	SnowflakesBlur:           "snowflakes-blur",
	ExternalImage:            "external-image",
}

// Short names accepted for compatibility with the interactive console.
// "animated" selects VirtualBackground with an animation sequence.
var modeAliases = map[string]Mode{
	"normal":         Bypass,
	"blur":           BlurBackground,
	"virtual":        VirtualBackground,
	"animated":       VirtualBackground,
	"snowflakesblur": SnowflakesBlur,
	"external":       ExternalImage,
}

// Modes returns every mode in declaration order.
func Modes() []Mode {
	out := make([]Mode, len(modeNames))
	for i := range modeNames {
		out[i] = Mode(i)
	}
	return out
}

func (m Mode) String() string {
	if m >= 0 && int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode resolves a mode name or alias. animated is true for the
// "animated" alias, which additionally asks for an animation sequence.
func ParseMode(name string) (mode Mode, animated bool, err error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range modeNames {
		if n == name {
			return Mode(i), false, nil
		}
	}
	if m, ok := modeAliases[name]; ok {
		return m, name == "animated", nil
	}
	return Bypass, false, fmt.Errorf("unknown mode %q", name)
}

// NeedsSource reports whether the mode composites a loaded background image.
func (m Mode) NeedsSource() bool {
	return m == VirtualBackground || m == VirtualBackgroundBlurred || m == ExternalImage
}

// IsSnow reports whether the particle overlay runs in this mode.
func (m Mode) IsSnow() bool {
	return m == Snowflakes || m == SnowflakesBlur
}

// blursPlanes reports whether the frame's own background planes are blurred.
func (m Mode) blursPlanes() bool {
	return m == BlurBackground || m == SnowflakesBlur
}
