package effect

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reference follows the transform step by step, in the documented order.
// The tinted gray lives in a byte buffer, so it is truncated and saturated
// before darkening.
func reference(r, g, b byte, intensity float64) [3]byte {
	gray := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	var moody [3]float64
	for c, factor := range [3]float64{0.9, 0.95, 1.1} {
		moody[c] = math.Min(math.Trunc(gray*factor), 255)
	}
	orig := [3]float64{float64(r), float64(g), float64(b)}

	var out [3]byte
	for c := range moody {
		v := moody[c] * (0.5 + 0.3*(1-intensity))
		v = ((v/255.0-0.5)*(1+intensity*0.5) + 0.5) * 255
		v = orig[c]*(1-intensity) + v*intensity
		v = math.Max(0, math.Min(255, v))
		out[c] = byte(v)
	}
	return out
}

func randomFrame(t *testing.T, pixels int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	frame := make([]byte, pixels*BytesPerPixel)
	_, err := rng.Read(frame)
	require.NoError(t, err)
	return frame
}

func TestMoody_KnownPixel(t *testing.T) {
	m := NewMoody(0.7)
	src := []byte{255, 255, 252}
	dst := make([]byte, 3)

	m.Apply(dst, src)

	// Blue tint saturates at 255 before the tone curve.
	assert.Equal(t, []byte{172, 179, 186}, dst)
}

func TestMoody_DarkPixelClampsAtZero(t *testing.T) {
	m := NewMoody(1)
	px := []byte{40, 90, 200}

	m.ApplyInPlace(px)

	assert.Equal(t, []byte{0, 0, 8}, px)
}

func TestMoody_MatchesReference(t *testing.T) {
	for _, intensity := range []float64{0.1, 0.3, 0.7, 1} {
		m := NewMoody(intensity)
		src := randomFrame(t, 512)
		dst := make([]byte, len(src))
		m.Apply(dst, src)

		for p := 0; p < len(src); p += BytesPerPixel {
			want := reference(src[p], src[p+1], src[p+2], intensity)
			for c := 0; c < 3; c++ {
				assert.InDelta(t, float64(want[c]), float64(dst[p+c]), 1,
					"intensity %.1f pixel %d channel %d", intensity, p/3, c)
			}
		}
	}
}

func TestMoody_ZeroIntensityIsIdentity(t *testing.T) {
	src := randomFrame(t, 256)
	dst := make([]byte, len(src))

	NewMoody(0).Apply(dst, src)

	assert.Equal(t, src, dst)
}

func TestMoody_Deterministic(t *testing.T) {
	m := NewMoody(0.7)
	src := randomFrame(t, 256)
	first := make([]byte, len(src))
	second := make([]byte, len(src))

	m.Apply(first, src)
	m.Apply(second, src)

	assert.Equal(t, first, second)
}

func TestMoody_InPlace(t *testing.T) {
	m := NewMoody(0.5)
	src := randomFrame(t, 64)
	want := make([]byte, len(src))
	m.Apply(want, src)

	frame := append([]byte(nil), src...)
	m.ApplyInPlace(frame)

	assert.Equal(t, want, frame)
}

func TestMoody_FullIntensityReplacesOriginal(t *testing.T) {
	m := NewMoody(1)
	// Pure green comes out blue-tinted gray: nothing of the original hue survives.
	px := []byte{0, 255, 0}
	m.ApplyInPlace(px)
	assert.Less(t, px[1], byte(100))
	assert.Greater(t, px[2], px[1])
	assert.Greater(t, px[1], px[0])
}

func TestClampIntensity(t *testing.T) {
	assert.Equal(t, 0.0, ClampIntensity(-0.5))
	assert.Equal(t, 1.0, ClampIntensity(3))
	assert.Equal(t, 0.4, ClampIntensity(0.4))
	assert.Equal(t, 0.0, ClampIntensity(math.NaN()))
	assert.Equal(t, 1.0, NewMoody(7).Intensity())
}

func TestMoody_PartialPixelCopied(t *testing.T) {
	m := NewMoody(1)
	src := []byte{10, 20, 30, 99}
	dst := make([]byte, 4)

	m.Apply(dst, src)

	assert.Equal(t, byte(99), dst[3])
}
