package automation

import (
	"fmt"

	"github.com/clickweave/clickweave/models"
)

// Corner is the screen corner that trips the failsafe.
type Corner string

const (
	CornerTopLeft     Corner = "top-left"
	CornerTopRight    Corner = "top-right"
	CornerBottomLeft  Corner = "bottom-left"
	CornerBottomRight Corner = "bottom-right"
)

// DefaultFailsafeSize is the side of the corner region in pixels.
const DefaultFailsafeSize = 50

func ParseCorner(s string) (Corner, error) {
	switch c := Corner(s); c {
	case CornerTopLeft, CornerTopRight, CornerBottomLeft, CornerBottomRight:
		return c, nil
	}
	return "", fmt.Errorf("unknown failsafe corner %q", s)
}

// Failsafe stops a click session when the pointer is parked in a corner.
type Failsafe struct {
	Enabled bool   `json:"enabled"`
	Corner  Corner `json:"corner"`
	Size    int    `json:"size"`
}

func DefaultFailsafe() Failsafe {
	return Failsafe{Enabled: true, Corner: CornerTopLeft, Size: DefaultFailsafeSize}
}

// Tripped reports whether p lies inside the configured corner region of a
// width x height screen. Region edges are inclusive.
func (f Failsafe) Tripped(p models.Point, width, height int) bool {
	if !f.Enabled {
		return false
	}
	size := f.Size
	if size <= 0 {
		size = DefaultFailsafeSize
	}
	left := p.X <= size
	right := p.X >= width-size
	top := p.Y <= size
	bottom := p.Y >= height-size

	switch f.Corner {
	case CornerTopRight:
		return right && top
	case CornerBottomLeft:
		return left && bottom
	case CornerBottomRight:
		return right && bottom
	default:
		return left && top
	}
}
