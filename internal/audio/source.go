package audio

import "time"

// Format describes the fixed capture format of a block source.
type Format struct {
	SampleRate int // samples per second per channel
	Channels   int // interleaved channel count
	BlockSize  int // frames per block
}

// BlockBytes returns the byte length of one complete block.
func (f Format) BlockBytes() int {
	return f.BlockSize * f.Channels * BytesPerSample
}

// BlockDuration returns the wall-clock duration covered by one block.
func (f Format) BlockDuration() time.Duration {
	return time.Duration(float64(f.BlockSize) / float64(f.SampleRate) * float64(time.Second))
}

// BlockSource produces fixed-size blocks of interleaved S16LE samples.
// Read blocks until a full block is available. The overflow flag reports a
// dropped/overrun block on the device side; the block itself is still valid.
type BlockSource interface {
	Read() (block []byte, overflow bool, err error)
	Format() Format
	Close() error
}
