//go:build windows

package audio

import "strconv"

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command: "ffmpeg",
		// Windows has no safe default capture device; one must be configured.
		DefaultDevice: "",
		BuildArgs:     buildWindowsArgs,
	}
}

func buildWindowsArgs(device string, f Format) []string {
	return []string{
		"-f", "dshow",
		"-i", "audio=" + device,
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-f", "s16le",
		"-hide_banner",
		"-loglevel", "warning",
		"-",
	}
}
