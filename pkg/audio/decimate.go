package audio

import "fmt"

// DecimationFactor returns the integer ratio between two sample rates.
// Non-integer ratios are rejected; block decimation cannot express them.
func DecimationFactor(from, to int) (int, error) {
	if from <= 0 || to <= 0 {
		return 0, fmt.Errorf("sample rates must be positive, got %d -> %d", from, to)
	}
	if from%to != 0 {
		return 0, fmt.Errorf("sample rate %d is not an integer multiple of %d", from, to)
	}
	return from / to, nil
}

// Decimate reduces the sample rate by averaging consecutive blocks of factor
// samples. A tail shorter than factor is trimmed, never padded, so the kept
// samples stay temporally aligned with the input.
func Decimate(samples []int16, factor int) []int16 {
	if factor <= 1 {
		out := make([]int16, len(samples))
		copy(out, samples)
		return out
	}
	n := len(samples) / factor
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var sum int
		base := i * factor
		for j := 0; j < factor; j++ {
			sum += int(samples[base+j])
		}
		out[i] = int16(sum / factor)
	}
	return out
}

// BytesLE encodes samples as little-endian 16-bit PCM, the layout both the
// transcription API and the wake model sidecar consume.
func BytesLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[2*i] = byte(s)
		out[2*i+1] = byte(uint16(s) >> 8)
	}
	return out
}

// SamplesLE decodes little-endian 16-bit PCM bytes. A trailing odd byte is
// dropped.
func SamplesLE(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8)
	}
	return out
}
