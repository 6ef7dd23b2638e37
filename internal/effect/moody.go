// Package effect implements per-frame visual transforms applied to decoded
// video frames.
package effect

import "math"

// BytesPerPixel is the stride of a packed rgb24 frame buffer.
const BytesPerPixel = 3

// Luma weights (ITU-R BT.601).
const (
	lumaR = 0.299
	lumaG = 0.587
	lumaB = 0.114
)

// Tint multipliers giving the cool cinematic cast.
const (
	tintR = 0.9
	tintG = 0.95
	tintB = 1.1
)

// Moody is the dark, desaturated, blue-tinted, contrast-boosted transform.
// It is stateless after construction and safe for concurrent use.
type Moody struct {
	intensity float64
	// tone maps a tinted gray byte to its darkened, contrast-boosted value
	// already weighted by intensity.
	tone [256]float64
}

// NewMoody creates the transform. Intensity is clamped to [0, 1].
func NewMoody(intensity float64) *Moody {
	i := ClampIntensity(intensity)

	darken := 0.5 + 0.3*(1-i)
	contrast := 1 + i*0.5

	m := &Moody{intensity: i}
	for v := range m.tone {
		tone := float64(v) * darken
		tone = ((tone/255.0-0.5)*contrast + 0.5) * 255
		m.tone[v] = tone * i
	}
	return m
}

// ClampIntensity limits v to [0, 1]. NaN maps to 0.
func ClampIntensity(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Intensity returns the clamped intensity in use.
func (m *Moody) Intensity() float64 {
	return m.intensity
}

// Apply transforms a packed rgb24 frame from src into dst. dst and src may
// be the same slice. Trailing bytes that do not form a full pixel are copied
// unchanged.
func (m *Moody) Apply(dst, src []byte) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	if m.intensity == 0 {
		copy(dst[:n], src[:n])
		return
	}

	keep := 1 - m.intensity

	full := n - n%BytesPerPixel
	for p := 0; p < full; p += BytesPerPixel {
		r := float64(src[p])
		g := float64(src[p+1])
		b := float64(src[p+2])
		luma := lumaR*r + lumaG*g + lumaB*b

		dst[p] = clampByte(r*keep + m.tone[tint(luma, tintR)])
		dst[p+1] = clampByte(g*keep + m.tone[tint(luma, tintG)])
		dst[p+2] = clampByte(b*keep + m.tone[tint(luma, tintB)])
	}
	copy(dst[full:n], src[full:n])
}

// ApplyInPlace transforms frame in place.
func (m *Moody) ApplyInPlace(frame []byte) {
	m.Apply(frame, frame)
}

// tint scales luma into a byte channel, truncating and saturating at 255
// before any further tone shaping.
func tint(luma, factor float64) uint8 {
	v := luma * factor
	if v >= 255 {
		return 255
	}
	return uint8(v)
}

// clampByte clips to [0, 255] and truncates toward zero.
func clampByte(v float64) byte {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return byte(v)
}
