package viewer

import "math"

// Size is a width and height in PDF points or pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AspectRatio returns height/width of the size.
func (s Size) AspectRatio() float64 {
	if s.Width == 0 {
		return 0
	}
	return s.Height / s.Width
}

// Dimensions are the pixel dimensions a page is displayed at.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Layout is the sizing part of the options, snapshotted for one render pass.
type Layout struct {
	Width    Length
	Height   Length
	Scale    float64
	Rotation int
}

func (o Options) layout() Layout {
	return Layout{Width: o.Width, Height: o.Height, Scale: o.Scale, Rotation: o.rotation()}
}

// PageDimensions maps the declared size and a page's aspect ratio
// (height/width of its native box) to pixel dimensions, before rotation.
// An undeclared width falls back to the container width.
func PageDimensions(layout Layout, containerWidth, aspectRatio float64) Dimensions {
	if !layout.Height.IsZero() && layout.Width.IsZero() {
		h := layout.Height.Pixels(containerWidth)
		if aspectRatio == 0 {
			return Dimensions{Height: h}
		}
		return Dimensions{Width: h / aspectRatio, Height: h}
	}
	w := containerWidth
	if !layout.Width.IsZero() {
		w = layout.Width.Pixels(containerWidth)
	}
	return Dimensions{Width: w, Height: w * aspectRatio}
}

// Rotate swaps width and height when rotation/90 is odd.
func (d Dimensions) Rotate(rotation int) Dimensions {
	if quarterTurns(rotation)%2 == 1 {
		return Dimensions{Width: d.Height, Height: d.Width}
	}
	return d
}

func quarterTurns(rotation int) int {
	q := (rotation / 90) % 4
	if q < 0 {
		q += 4
	}
	return q
}

// Viewport maps PDF user space of one page to display space at a scale and
// clockwise rotation. With DontFlip the Y axis is not inverted.
type Viewport struct {
	Scale    float64
	Rotation int
	DontFlip bool
	// Page is the native size of the page box in points.
	Page Size
	// Width and Height are the rotated, scaled display size.
	Width  float64
	Height float64

	transform [6]float64
}

// NewViewport builds the viewport of a page of the given native size.
func NewViewport(page Size, scale float64, rotation int) Viewport {
	return newViewport(page, scale, rotation, false)
}

// NonFlipped returns a copy of v that does not invert the Y axis.
func (v Viewport) NonFlipped() Viewport {
	return newViewport(v.Page, v.Scale, v.Rotation, true)
}

func newViewport(page Size, scale float64, rotation int, dontFlip bool) Viewport {
	var a, b, c, d float64
	switch quarterTurns(rotation) {
	case 1:
		a, b, c, d = 0, 1, 1, 0
	case 2:
		a, b, c, d = -1, 0, 0, 1
	case 3:
		a, b, c, d = 0, -1, -1, 0
	default:
		a, b, c, d = 1, 0, 0, -1
	}
	if dontFlip {
		c, d = -c, -d
	}
	cx, cy := page.Width/2, page.Height/2
	var offX, offY, width, height float64
	if a == 0 {
		offX, offY = cy*scale, cx*scale
		width, height = page.Height*scale, page.Width*scale
	} else {
		offX, offY = cx*scale, cy*scale
		width, height = page.Width*scale, page.Height*scale
	}
	return Viewport{
		Scale:    scale,
		Rotation: quarterTurns(rotation) * 90,
		DontFlip: dontFlip,
		Page:     page,
		Width:    width,
		Height:   height,
		transform: [6]float64{
			a * scale, b * scale, c * scale, d * scale,
			offX - a*scale*cx - c*scale*cy,
			offY - b*scale*cx - d*scale*cy,
		},
	}
}

// Apply maps a point from PDF user space to display space.
func (v Viewport) Apply(x, y float64) (float64, float64) {
	t := v.transform
	return t[0]*x + t[2]*y + t[4], t[1]*x + t[3]*y + t[5]
}

// ApplyRect maps a PDF rectangle [x1 y1 x2 y2] and returns the normalised
// display rectangle as left, top, width, height.
func (v Viewport) ApplyRect(r [4]float64) (left, top, width, height float64) {
	x1, y1 := v.Apply(r[0], r[1])
	x2, y2 := v.Apply(r[2], r[3])
	left, top = math.Min(x1, x2), math.Min(y1, y2)
	return left, top, math.Abs(x2 - x1), math.Abs(y2 - y1)
}

// DeviceSize returns the integer pixel size of a surface for v.
func (v Viewport) DeviceSize() (int, int) {
	return int(math.Floor(v.Width)), int(math.Floor(v.Height))
}

// rasterScale is the oversampling scale used for the raster layer.
func rasterScale(explicit, actualWidth, nativeWidth float64) float64 {
	if explicit > 0 {
		return explicit
	}
	if nativeWidth <= 0 {
		return 1
	}
	return math.Floor(actualWidth/nativeWidth) + 1
}
