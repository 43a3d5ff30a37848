package dsp

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NormalizeTarget is the peak ceiling samples are scaled toward,
// 95% of full scale.
const NormalizeTarget = 32767 * 95 / 100

// NormalizeResult reports what Normalize did with the buffer.
type NormalizeResult int

const (
	// NormalizeApplied means the buffer was boosted toward the target peak.
	NormalizeApplied NormalizeResult = iota
	// NormalizeSkippedSilent means the buffer contained only zero samples.
	NormalizeSkippedSilent
	// NormalizeSkippedLoud means the buffer was already at or above the target.
	NormalizeSkippedLoud
	// NormalizeDisabled means normalization was turned off and never attempted.
	// Normalize itself never returns it; callers that skip the call report it.
	NormalizeDisabled
)

func (r NormalizeResult) String() string {
	switch r {
	case NormalizeApplied:
		return "applied"
	case NormalizeSkippedSilent:
		return "skipped_silent"
	case NormalizeSkippedLoud:
		return "skipped_loud"
	case NormalizeDisabled:
		return "disabled"
	}
	return "unknown"
}

// Normalize rescales an S16LE buffer in place so its peak reaches
// NormalizeTarget. It only ever boosts; a silent or already-loud buffer is
// left untouched. Requires the complete signal, since the scale factor
// depends on the global peak.
func Normalize(pcm []byte) NormalizeResult {
	if len(pcm)%bytesPerSample != 0 {
		panic(fmt.Sprintf("dsp: buffer of %d bytes is not a whole number of samples", len(pcm)))
	}

	peak := 0
	for i := 0; i+bytesPerSample <= len(pcm); i += bytesPerSample {
		v := int(int16(binary.LittleEndian.Uint16(pcm[i:])))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}

	if peak == 0 {
		return NormalizeSkippedSilent
	}

	scale := float64(NormalizeTarget) / float64(peak)
	if scale <= 1.0 {
		return NormalizeSkippedLoud
	}

	for i := 0; i+bytesPerSample <= len(pcm); i += bytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:])))
		scaled := int(math.Round(s * scale))
		// Clamp guards against rounding overshoot at the peak.
		binary.LittleEndian.PutUint16(pcm[i:], uint16(clampInt16(scaled)))
	}

	return NormalizeApplied
}
