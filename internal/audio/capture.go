package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/pi2rec/vadrec/internal/util"
)

// ErrNoAudioDevice is returned when no audio input device is available.
var ErrNoAudioDevice = errors.New("no audio input device found")

// CaptureConfig defines the platform-specific capture command.
type CaptureConfig struct {
	// Command is the executable name (e.g., "arecord", "ffmpeg").
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// BuildArgs returns the command arguments that make the process emit
	// raw interleaved S16LE frames on stdout for the given device/format.
	BuildArgs func(device string, f Format) []string
}

// DeviceSource reads fixed blocks from a platform capture subprocess.
// It is owned by the capture loop and must not be shared.
type DeviceSource struct {
	format   Format
	cmd      *exec.Cmd
	stdout   *bufio.Reader
	closer   io.Closer
	overrun  atomic.Bool
	stderrWG chan struct{}
}

// NewDeviceSource starts the platform capture process for the given device.
// An empty device selects the platform default.
func NewDeviceSource(device string, format Format) (*DeviceSource, error) {
	cfg := getPlatformConfig()

	if device == "" {
		device = cfg.DefaultDevice
	}
	if device == "" {
		return nil, ErrNoAudioDevice
	}

	cmd := exec.Command(cfg.Command, cfg.BuildArgs(device, format)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, util.WrapError("create capture stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, util.WrapError("create capture stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command %q: %w", cfg.Command, err)
	}

	s := &DeviceSource{
		format:   format,
		cmd:      cmd,
		stdout:   bufio.NewReaderSize(stdout, format.BlockBytes()),
		closer:   stdout,
		stderrWG: make(chan struct{}),
	}
	go s.watchStderr(stderr)

	return s, nil
}

// watchStderr flags device overruns reported by the capture process.
func (s *DeviceSource) watchStderr(r io.Reader) {
	defer close(s.stderrWG)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(scanner.Text())
		if strings.Contains(line, "overrun") || strings.Contains(line, "xrun") {
			s.overrun.Store(true)
		}
	}
}

// Read returns the next complete block. The overflow flag is set when the
// capture process reported an overrun since the previous read.
func (s *DeviceSource) Read() ([]byte, bool, error) {
	block := make([]byte, s.format.BlockBytes())
	if _, err := io.ReadFull(s.stdout, block); err != nil {
		return nil, false, util.WrapError("read audio block", err)
	}
	return block, s.overrun.Swap(false), nil
}

// Format returns the capture format.
func (s *DeviceSource) Format() Format {
	return s.format
}

// Close terminates the capture process.
func (s *DeviceSource) Close() error {
	_ = s.closer.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.cmd.Wait()
	<-s.stderrWG
	// Kill makes Wait report an exit error; that is the expected path.
	if err != nil && s.cmd.ProcessState != nil && !s.cmd.ProcessState.Success() {
		return nil
	}
	return err
}
