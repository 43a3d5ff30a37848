// Package audio provides block-wise level metering and access to the
// multi-channel capture device.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// BytesPerSample is the width of one S16LE sample.
	BytesPerSample = 2
	// MaxSampleValue is the maximum value for 16-bit signed audio.
	MaxSampleValue = 32767
	// MinSampleValue is the minimum value for 16-bit signed audio.
	MinSampleValue = -32768
)

// ChannelLevels holds one RMS level per input channel for a single block.
type ChannelLevels []int

// Peak returns the loudest channel level. An empty slice yields zero.
func (l ChannelLevels) Peak() int {
	peak := 0
	for _, v := range l {
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Levels computes the RMS level of every channel in an interleaved S16LE
// block. The square root is truncated, not rounded. A block whose length is
// not a whole number of frames is a programming error and panics.
func Levels(block []byte, channels int) ChannelLevels {
	if channels <= 0 {
		panic(fmt.Sprintf("audio: invalid channel count %d", channels))
	}
	frameBytes := channels * BytesPerSample
	if len(block)%frameBytes != 0 {
		panic(fmt.Sprintf("audio: block of %d bytes is not a multiple of the %d-byte frame", len(block), frameBytes))
	}

	frames := len(block) / frameBytes
	levels := make(ChannelLevels, channels)
	if frames == 0 {
		return levels
	}

	for ch := range channels {
		var sumSquares float64
		for frame := range frames {
			offset := frame*frameBytes + ch*BytesPerSample
			sample := int16(binary.LittleEndian.Uint16(block[offset:]))
			s := float64(sample)
			sumSquares += s * s
		}
		levels[ch] = int(math.Sqrt(sumSquares / float64(frames)))
	}

	return levels
}
