package session

import (
	"errors"
	"fmt"
	"time"

	"interviewrec/audio"
)

var (
	// ErrAlreadyRecording is returned by Start when a session is active.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrEncoderUnavailable is returned when the encoder cannot be found or launched.
	ErrEncoderUnavailable = errors.New("encoder unavailable")
	// ErrRecordingFailed is returned by Stop when the output file is missing or empty.
	ErrRecordingFailed = errors.New("recording failed")
	// ErrDeviceUnavailable is re-exported from audio for callers of this package.
	ErrDeviceUnavailable = audio.ErrDeviceUnavailable
)

// State is the recorder lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateRecording  State = "recording"
	StateFinalizing State = "finalizing"
)

// Session describes one recording.
type Session struct {
	ID         string        `json:"id"`
	OutputPath string        `json:"outputPath"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    *time.Time    `json:"endTime,omitempty"`
	State      State         `json:"state"`
	Devices    audio.Devices `json:"devices"`
	// Size is the size of the finalized file in bytes.
	Size int64 `json:"size,omitempty"`
}

// Duration returns the wall clock length of the session so far.
func (s *Session) Duration() time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// FormatElapsed renders whole seconds as HH:MM:SS. Hours are not wrapped,
// so 100 hours renders as "100:00:00".
func FormatElapsed(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}
