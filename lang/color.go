package lang

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// toColorful converts c to a go-colorful color, dropping alpha.
func (c Color) toColorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

func fromColorful(cc colorful.Color, alpha uint8) Color {
	r, g, b := cc.Clamped().RGB255()

	return Color{R: r, G: g, B: b, A: alpha}
}

// unit scales a 0..1 float to a channel value.
func unit(f float64) uint8 {
	return uint8(math.Round(min(max(f, 0), 1) * 255))
}

// HLS returns hue, lightness and saturation, each in 0..1.
func (c Color) HLS() (h, l, s float64) {
	h, s, l = c.toColorful().Hsl()

	return h / 360, l, s
}

// HSV returns hue, saturation and value, each in 0..1.
func (c Color) HSV() (h, s, v float64) {
	h, s, v = c.toColorful().Hsv()

	return h / 360, s, v
}

// Lum returns the lightness of the color.
func (c Color) Lum() float64 {
	_, l, _ := c.HLS()

	return l
}

// WithLum returns c with its lightness replaced.
func (c Color) WithLum(lum float64) Color {
	h, _, s := c.HLS()

	return fromColorful(colorful.Hsl(h*360, s, min(max(lum, 0), 1)), c.A)
}

func colorArgs(name string, a []any) ([4]float64, error) {
	var out [4]float64

	for i, v := range a {
		f, ok := asFloat(or(v, 1.0))
		if !ok {
			return out, typeError(name, v)
		}

		out[i] = f
	}

	return out, nil
}

func builtinRGB(_ *call, a []any) (any, error) {
	f, err := colorArgs("rgb", a)
	if err != nil {
		return nil, err
	}

	return Color{unit(f[0]), unit(f[1]), unit(f[2]), unit(f[3])}, nil
}

func builtinHLS(_ *call, a []any) (any, error) {
	f, err := colorArgs("hls", a)
	if err != nil {
		return nil, err
	}

	return fromColorful(colorful.Hsl(hue(f[0]), f[2], f[1]), unit(f[3])), nil
}

// hue maps a 0..1 turn fraction to degrees, wrapping out of range values.
func hue(f float64) float64 {
	h := math.Mod(f, 1)
	if h < 0 {
		h++
	}

	return h * 360
}

func builtinHSV(_ *call, a []any) (any, error) {
	f, err := colorArgs("hsv", a)
	if err != nil {
		return nil, err
	}

	return fromColorful(colorful.Hsv(hue(f[0]), f[1], f[2]), unit(f[3])), nil
}
