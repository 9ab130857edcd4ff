package viewer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rootFontSize resolves rem and em lengths.
const rootFontSize = 16

var lengthUnits = map[string]bool{"": true, "px": true, "%": true, "vw": true, "rem": true, "em": true}

// Length is a declared width or height: a plain number of CSS pixels or a
// number with a sizing unit. The zero Length means "not declared".
type Length struct {
	Value float64
	Unit  string
}

// Px returns a pixel length.
func Px(v float64) Length { return Length{Value: v, Unit: "px"} }

// ParseLength parses "640", "640px", "50%", "40vw", "12rem" or "2em".
func ParseLength(s string) (Length, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Length{}, nil
	}
	i := len(s)
	for i > 0 && !isNumberByte(s[i-1]) {
		i--
	}
	unit := strings.ToLower(s[i:])
	v, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || !lengthUnits[unit] {
		return Length{}, fmt.Errorf("%w: %q", ErrInvalidLength, s)
	}
	if v < 0 {
		return Length{}, fmt.Errorf("%w: %q is negative", ErrInvalidLength, s)
	}
	if unit == "" {
		unit = "px"
	}
	return Length{Value: v, Unit: unit}, nil
}

func isNumberByte(b byte) bool {
	return b >= '0' && b <= '9' || b == '.'
}

// IsZero reports whether the length was left undeclared.
func (l Length) IsZero() bool { return l.Value == 0 }

// Pixels resolves the length against the host container width.
func (l Length) Pixels(containerWidth float64) float64 {
	switch l.Unit {
	case "%", "vw":
		return l.Value * containerWidth / 100
	case "rem", "em":
		return l.Value * rootFontSize
	default:
		return l.Value
	}
}

func (l Length) String() string {
	if l.IsZero() {
		return ""
	}
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + l.Unit
}

// MarshalJSON encodes pixel lengths as numbers and others as strings.
func (l Length) MarshalJSON() ([]byte, error) {
	if l.IsZero() {
		return []byte("null"), nil
	}
	if l.Unit == "px" || l.Unit == "" {
		return json.Marshal(l.Value)
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts a number, a string with an optional unit, or null.
func (l *Length) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = Length{}
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		if n < 0 {
			return fmt.Errorf("%w: %v is negative", ErrInvalidLength, n)
		}
		*l = Px(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidLength, b)
	}
	parsed, err := ParseLength(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Options is the caller-supplied configuration of a viewer.
type Options struct {
	// Source is the document to display. A nil Source displays nothing.
	Source Source `json:"-"`
	// Page selects a single page to display; 0 displays all pages.
	Page int `json:"page,omitempty"`

	Width  Length `json:"width"`
	Height Length `json:"height"`
	// Scale overrides the raster oversampling factor when positive.
	Scale float64 `json:"scale,omitempty"`
	// Rotation is clockwise in degrees and must be a multiple of 90.
	Rotation int `json:"rotation,omitempty"`

	DisableTextLayer       bool `json:"disableTextLayer,omitempty"`
	DisableAnnotationLayer bool `json:"disableAnnotationLayer,omitempty"`

	// ImageResourcesPath prefixes annotation icon images; it should end
	// with a path separator.
	ImageResourcesPath string `json:"imageResourcesPath,omitempty"`
	// Identifier namespaces page container ids as "{identifier}-{page}".
	Identifier string `json:"identifier,omitempty"`
}

// Validate checks the options for configuration errors.
func (o Options) Validate() error {
	if o.Rotation%90 != 0 {
		return &ConfigError{Field: "rotation", Err: fmt.Errorf("%w, got %d", ErrInvalidRotation, o.Rotation)}
	}
	if o.Page < 0 {
		return &ConfigError{Field: "page", Err: ErrInvalidPage}
	}
	if o.Scale < 0 {
		return &ConfigError{Field: "scale", Err: fmt.Errorf("scale must not be negative, got %v", o.Scale)}
	}
	for field, l := range map[string]Length{"width": o.Width, "height": o.Height} {
		if l.Value < 0 || !lengthUnits[l.Unit] {
			return &ConfigError{Field: field, Err: fmt.Errorf("%w: %v%s", ErrInvalidLength, l.Value, l.Unit)}
		}
	}
	return nil
}

// rotation returns the rotation normalised to [0, 360).
func (o Options) rotation() int {
	r := o.Rotation % 360
	if r < 0 {
		r += 360
	}
	return r
}

// change is the set of option categories that differ between two updates.
type change uint8

const (
	changeSource change = 1 << iota
	changeLayout
	changePage
	changeLayers
)

func (c change) has(f change) bool { return c&f != 0 }

func (c change) String() string {
	var parts []string
	for _, f := range []struct {
		flag change
		name string
	}{{changeSource, "source"}, {changeLayout, "layout"}, {changePage, "page"}, {changeLayers, "layers"}} {
		if c.has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// diffOptions reports which categories changed from prev to next.
func diffOptions(prev, next Options) change {
	var c change
	if !SameSource(prev.Source, next.Source) {
		c |= changeSource
	}
	if prev.Width != next.Width || prev.Height != next.Height || prev.Scale != next.Scale || prev.rotation() != next.rotation() {
		c |= changeLayout
	}
	if prev.Page != next.Page {
		c |= changePage
	}
	if prev.DisableTextLayer != next.DisableTextLayer || prev.DisableAnnotationLayer != next.DisableAnnotationLayer ||
		prev.ImageResourcesPath != next.ImageResourcesPath || prev.Identifier != next.Identifier {
		c |= changeLayers
	}
	return c
}
