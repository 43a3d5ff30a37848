//go:build darwin

package audio

import "strconv"

func getPlatformConfig() CaptureConfig {
	return CaptureConfig{
		Command:       "ffmpeg",
		DefaultDevice: ":0",
		BuildArgs:     buildDarwinArgs,
	}
}

func buildDarwinArgs(device string, f Format) []string {
	return []string{
		"-f", "avfoundation",
		"-i", device,
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-f", "s16le",
		"-hide_banner",
		"-loglevel", "warning",
		"-",
	}
}
