package testutils

import "math"

// SineWave generates n samples of a sine wave at the given frequency and
// amplitude, sampled at rate Hz.
func SineWave(n int, freq, amp float64, rate int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return s
}

// Silence generates n samples of digital silence.
func Silence(n int) []float32 {
	return make([]float32, n)
}

// ConstSamples generates n samples holding the value v.
func ConstSamples(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}
