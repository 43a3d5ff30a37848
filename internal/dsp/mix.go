// Package dsp implements the channel-mixing and loudness-normalization
// transforms applied to finished recordings.
package dsp

import (
	"encoding/binary"
	"fmt"
)

const bytesPerSample = 2

// MixPolicy selects how input channels are combined into the stereo output.
type MixPolicy string

const (
	// MixAverage averages all input channels into one value, duplicated
	// into both output channels. The average of N int16 values cannot
	// leave the int16 range, so no clamping is needed.
	MixAverage MixPolicy = "average"

	// MixSumClamp sums all input channels and clamps the result to the
	// int16 range. Preserves perceived loudness at the cost of possible
	// clipping; the clamp prevents wraparound artifacts.
	MixSumClamp MixPolicy = "sum"
)

// Mix reduces an interleaved S16LE buffer of the given channel count to a
// stereo S16LE buffer, frame by frame. Empty input yields empty output.
// A buffer that is not a whole number of frames panics.
func Mix(pcm []byte, channels int, policy MixPolicy) []byte {
	if channels <= 0 {
		panic(fmt.Sprintf("dsp: invalid channel count %d", channels))
	}
	frameBytes := channels * bytesPerSample
	if len(pcm)%frameBytes != 0 {
		panic(fmt.Sprintf("dsp: buffer of %d bytes is not a multiple of the %d-byte frame", len(pcm), frameBytes))
	}

	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2*bytesPerSample)

	for frame := range frames {
		sum := 0
		base := frame * frameBytes
		for ch := range channels {
			sum += int(int16(binary.LittleEndian.Uint16(pcm[base+ch*bytesPerSample:])))
		}

		var mixed int16
		switch policy {
		case MixSumClamp:
			mixed = clampInt16(sum)
		default:
			mixed = int16(floorDiv(sum, channels))
		}

		o := frame * 2 * bytesPerSample
		binary.LittleEndian.PutUint16(out[o:], uint16(mixed))
		binary.LittleEndian.PutUint16(out[o+bytesPerSample:], uint16(mixed))
	}

	return out
}

// floorDiv divides rounding toward negative infinity, matching the
// reference mixer's integer division.
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func clampInt16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
