// Package segment owns the lifecycle of a recording: the Idle⇄Active state
// machine, the WAV backing storage it writes, and the post-processing that
// turns a closed raw capture into the deliverable stereo artifact.
package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pi2rec/vadrec/internal/audio"
	"github.com/pi2rec/vadrec/internal/util"
)

const (
	rawSuffix    = "_raw.wav"
	stereoSuffix = "_stereo.wav"
	bitDepth     = 16
	pcmFormat    = 1
)

// Store creates backing files for new segments in a single directory.
type Store struct {
	dir    string
	format audio.Format
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string, format audio.Format) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, util.WrapError("create recordings directory", err)
	}
	return &Store{dir: dir, format: format}, nil
}

// Open creates the raw backing file for a segment starting at the given time.
func (s *Store) Open(start time.Time) (BlockWriter, error) {
	name := fmt.Sprintf("vad_%s%s", util.SortableTimestamp(start), rawSuffix)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return nil, util.WrapError("create segment file", err)
	}

	return &rawWriter{
		f:      f,
		enc:    wav.NewEncoder(f, s.format.SampleRate, bitDepth, s.format.Channels, pcmFormat),
		path:   path,
		format: s.format,
	}, nil
}

// rawWriter appends capture blocks to an open raw WAV file.
type rawWriter struct {
	f      *os.File
	enc    *wav.Encoder
	path   string
	format audio.Format
}

func (w *rawWriter) WriteBlock(block []byte) error {
	buf := &gaudio.IntBuffer{
		Data: PCMInts(block),
		Format: &gaudio.Format{
			NumChannels: w.format.Channels,
			SampleRate:  w.format.SampleRate,
		},
		SourceBitDepth: bitDepth,
	}
	return util.WrapError("write segment block", w.enc.Write(buf))
}

func (w *rawWriter) Path() string {
	return w.path
}

// Close finalizes the WAV header and closes the file.
func (w *rawWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		_ = w.f.Close()
		return util.WrapError("finalize segment file", err)
	}
	return util.WrapError("close segment file", w.f.Close())
}

// Discard closes and deletes the backing file.
func (w *rawWriter) Discard() error {
	_ = w.enc.Close()
	_ = w.f.Close()
	return util.WrapError("delete discarded segment", os.Remove(w.path))
}

// ReadPCM loads the full sample data of a WAV file as interleaved S16LE bytes.
func ReadPCM(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, util.WrapError("open recording", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, util.WrapError("decode recording", err)
	}
	return PCMBytes(buf.Data), nil
}

// WriteStereo writes interleaved stereo S16LE bytes as a WAV file.
func WriteStereo(path string, pcm []byte, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return util.WrapError("create processed file", err)
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 2, pcmFormat)
	buf := &gaudio.IntBuffer{
		Data:           PCMInts(pcm),
		Format:         &gaudio.Format{NumChannels: 2, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return util.WrapError("write processed file", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return util.WrapError("finalize processed file", err)
	}
	return util.WrapError("close processed file", f.Close())
}

// PCMInts converts S16LE bytes to the int samples the WAV codec expects.
func PCMInts(pcm []byte) []int {
	out := make([]int, len(pcm)/audio.BytesPerSample)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*audio.BytesPerSample:])))
	}
	return out
}

// PCMBytes converts int samples back to S16LE bytes.
func PCMBytes(samples []int) []byte {
	out := make([]byte, len(samples)*audio.BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*audio.BytesPerSample:], uint16(int16(s)))
	}
	return out
}
