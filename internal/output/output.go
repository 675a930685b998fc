package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const meterWidth = 30

// Formatter prints user-facing lines. It is safe for concurrent use, since
// the event renderer and the command goroutine share it.
type Formatter struct {
	mu sync.Mutex
	w  io.Writer
	// meterShown is true while the last thing written is the live meter.
	meterShown bool
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

// Meter redraws the live recording line in place.
func (f *Formatter) Meter(elapsed string, level int) {
	level = max(0, min(level, 100))
	filled := level * meterWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", meterWidth-filled)

	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.w, "\r🔴 %s [%s] %3d%%", elapsed, bar, level)
	f.meterShown = true
}

func (f *Formatter) line(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.meterShown {
		fmt.Fprintln(f.w)
		f.meterShown = false
	}
	fmt.Fprintf(f.w, format+"\n", args...)
}

func (f *Formatter) RecordingStarted(path string) {
	f.line("▶ Recording to %s (Ctrl+C to stop)", path)
}

func (f *Formatter) RecordingStopped(elapsed string, size int64) {
	f.line("⏹️  Recording stopped (%s, %.1f MB)", elapsed, float64(size)/(1024*1024))
}

func (f *Formatter) Transcribing(path string) {
	f.line("📝 Transcribing %s...", path)
}

func (f *Formatter) TranscribeDone(path string) {
	f.line("✅ Transcript saved: %s", path)
}

func (f *Formatter) Status(msg string) {
	f.line("· %s", msg)
}

func (f *Formatter) Progress(line string) {
	f.line("  %s", line)
}

func (f *Formatter) Error(msg string) {
	f.line("❌ %s", msg)
}

func (f *Formatter) Info(msg string) {
	f.line("ℹ️  %s", msg)
}

func (f *Formatter) Success(msg string) {
	f.line("✅ %s", msg)
}

func (f *Formatter) Warning(msg string) {
	f.line("⚠️  %s", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		f.line("  ✅ %s: %s", name, detail)
		return
	}
	f.line("  ❌ %s: %s", name, detail)
}
