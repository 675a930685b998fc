package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode selects the transcription path.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// ParseMode parses a mode name. An empty name means local.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeLocal:
		return ModeLocal, nil
	case ModeRemote:
		return ModeRemote, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// JobState is the lifecycle state of a Job.
type JobState string

const (
	JobPending   JobState = "pending"
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
)

// Terminal reports whether no further transitions happen.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimedOut
}

// Job tracks one transcription request.
type Job struct {
	ID         string     `json:"id"`
	SourcePath string     `json:"sourcePath"`
	Language   string     `json:"language"`
	Model      string     `json:"model,omitempty"`
	Mode       Mode       `json:"mode"`
	RemoteID   string     `json:"remoteId,omitempty"`
	State      JobState   `json:"state"`
	Attempts   int        `json:"attempts,omitempty"`
	Result     *Result    `json:"result,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	err error
}

// Err returns the failure of a finished job.
func (j *Job) Err() error {
	return j.err
}

// ResultKind distinguishes flat transcripts from diarized dialogue.
type ResultKind string

const (
	ResultPlain    ResultKind = "plain"
	ResultDialogue ResultKind = "dialogue"
)

// Result is the normalized outcome of either transcription path.
type Result struct {
	Kind ResultKind `json:"kind"`
	// Text is the rendered transcript.
	Text string `json:"text"`
	// TranscriptPath is set when the transcript exists on disk.
	TranscriptPath string    `json:"transcriptPath,omitempty"`
	Dialogue       *Dialogue `json:"dialogue,omitempty"`
}

// Dialogue is a diarized transcript.
type Dialogue struct {
	Language    string `json:"language"`
	NumSpeakers int    `json:"num_speakers"`
	Turns       []Turn `json:"dialogue"`
	Error       string `json:"error,omitempty"`
}

// Turn is one speaker's contiguous utterance. Offsets are in seconds.
type Turn struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Progress reports intermediate state from a transcriber.
type Progress struct {
	State    JobState
	RemoteID string
	Attempt  int
	Status   string
	// Line is one line of recognizer output.
	Line string
}

// Request describes a file to transcribe.
type Request struct {
	Path     string
	Language string
	Model    string
	Mode     Mode
	// OnProgress is called from the worker goroutine.
	OnProgress func(Progress)
}

func (r Request) progress(p Progress) {
	if r.OnProgress != nil {
		r.OnProgress(p)
	}
}

// Transcriber converts an audio file into a Result.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (*Result, error)
}
