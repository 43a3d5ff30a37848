package segment

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pi2rec/vadrec/internal/dsp"
)

// Processor turns a closed raw capture into the deliverable stereo artifact:
// channel mixing, then optional loudness normalization.
type Processor struct {
	Channels   int
	SampleRate int
	Policy     dsp.MixPolicy
	Normalize  bool
}

// Artifact is the processed stereo recording.
type Artifact struct {
	Path      string
	Normalize dsp.NormalizeResult
}

// Process reads the frozen raw file, mixes it down to stereo, normalizes it
// and writes the stereo variant next to it. On success the raw file is
// removed; a failed removal is logged and otherwise ignored.
func (p *Processor) Process(rawPath string) (*Artifact, error) {
	pcm, err := ReadPCM(rawPath)
	if err != nil {
		return nil, err
	}

	mixed := dsp.Mix(pcm, p.Channels, p.Policy)

	result := dsp.NormalizeDisabled
	if p.Normalize {
		result = dsp.Normalize(mixed)
	}

	outPath := processedPath(rawPath)
	if err := WriteStereo(outPath, mixed, p.SampleRate); err != nil {
		return nil, err
	}

	if err := os.Remove(rawPath); err != nil {
		slog.Warn("failed to remove raw capture", "path", rawPath, "error", err)
	}

	return &Artifact{Path: outPath, Normalize: result}, nil
}

// processedPath derives the stereo filename from the raw one.
func processedPath(rawPath string) string {
	if strings.HasSuffix(rawPath, rawSuffix) {
		return strings.TrimSuffix(rawPath, rawSuffix) + stereoSuffix
	}
	return rawPath + stereoSuffix
}
