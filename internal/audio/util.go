package audio

import (
	"math"
	"slices"
)

func bytesToLES16Slice(src []byte, dst []int16) []int16 {
	s16len := len(src) / 2
	dst = slices.Grow(dst, s16len)
	for i := 0; i < s16len; i++ {
		dst = append(dst, int16(src[i*2])|(int16(src[i*2+1])<<8))
	}
	return dst
}

func leS16SliceToBytes(src []int16, dst []byte) []byte {
	s8len := len(src) * 2
	dst = slices.Grow(dst, s8len)
	for i := 0; i < len(src); i++ {
		dst = append(dst, byte(src[i]), byte(src[i]>>8))
	}
	return dst
}

// s16ToF32Slice converts raw S16 samples to floats in [-1, 1).
func s16ToF32Slice(src []int16, dst []float32) []float32 {
	dst = slices.Grow(dst, len(src))
	for _, s := range src {
		dst = append(dst, float32(s)/32768)
	}
	return dst
}

// f32ToS16Slice converts float samples to S16, rounding and clamping to the
// valid range. Values already on the int16 grid (k/32768) convert back
// bit-exact.
func f32ToS16Slice(src []float32, dst []int16) []int16 {
	dst = slices.Grow(dst, len(src))
	for _, f := range src {
		v := math.Round(float64(f) * 32768)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		dst = append(dst, int16(v))
	}
	return dst
}

// clipSample hard-limits v to the valid [-1, 1] sample range.
func clipSample(v float64) float32 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return float32(v)
}

// Peak returns the maximum absolute amplitude in samples. An empty slice
// has a zero peak and counts as silence.
func Peak(samples []float32) float64 {
	var peak float64
	for _, s := range samples {
		a := math.Abs(float64(s))
		if a > peak {
			peak = a
		}
	}
	return peak
}
