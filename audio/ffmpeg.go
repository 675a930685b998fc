package audio

import "strconv"

const (
	// RecordSampleRate is the sample rate of the recorded MP3.
	RecordSampleRate = 16000
	// MeterSampleRate keeps the level monitor cheap.
	MeterSampleRate = 8000
	// MeterChunkSamples is 100 ms of meter audio.
	MeterChunkSamples = MeterSampleRate / 10
)

func pulseInputs(dev Devices) []string {
	return []string{
		"-f", "pulse", "-i", dev.Monitor,
		"-f", "pulse", "-i", dev.Source,
		"-filter_complex", "amix=inputs=2:duration=longest",
	}
}

// EncoderArgs builds ffmpeg arguments that mix system audio and microphone
// into a mono MP3 at outputPath.
func EncoderArgs(dev Devices, outputPath string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, pulseInputs(dev)...)
	return append(args,
		"-ac", "1",
		"-ar", strconv.Itoa(RecordSampleRate),
		"-codec:a", "libmp3lame",
		"-qscale:a", "4",
		"-y",
		outputPath,
	)
}

// MeterArgs builds ffmpeg arguments that write the same mix as raw signed
// 16-bit little-endian mono PCM to stdout.
func MeterArgs(dev Devices) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error"}
	args = append(args, pulseInputs(dev)...)
	return append(args,
		"-f", "s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(MeterSampleRate),
		"-",
	)
}
