package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// Duration returns the playing time of an audio file. MP3 files are measured
// with a pure Go decoder; other formats go through ffprobe.
func Duration(ctx context.Context, path, ffprobePath string) (time.Duration, error) {
	if strings.EqualFold(filepath.Ext(path), ".mp3") {
		if d, err := mp3Duration(path); err == nil {
			return d, nil
		}
	}
	return probeDuration(ctx, path, ffprobePath)
}

func mp3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("decode mp3: %w", err)
	}
	if dec.SampleRate() <= 0 || dec.Length() <= 0 {
		return 0, fmt.Errorf("mp3 length unknown: %s", path)
	}

	// go-mp3 reports the length in bytes of 16-bit stereo PCM.
	frames := dec.Length() / 4
	return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate()), nil
}

func probeDuration(ctx context.Context, path, ffprobePath string) (time.Duration, error) {
	bin, err := FindBinary("ffprobe", ffprobePath)
	if err != nil {
		return 0, err
	}

	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// FormatClock renders a duration as M:SS, used in log lines.
func FormatClock(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
