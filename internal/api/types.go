package api

import (
	"interviewrec/internal/service"
	"interviewrec/session"
	"interviewrec/transcribe"
)

// Message types sent by clients.
const (
	MsgStartRecording = "start_recording"
	MsgStopRecording  = "stop_recording"
	MsgTranscribe     = "transcribe"
	MsgCancel         = "cancel"
	MsgGetStatus      = "get_status"
)

// Message types sent by the server.
const (
	MsgRecordingStarted     = "recording_started"
	MsgRecordingStopped     = "recording_stopped"
	MsgTranscriptionStarted = "transcription_started"
	MsgCancelled            = "cancelled"
	MsgStatusSnapshot       = "status_snapshot"
	MsgError                = "error"

	MsgLevel        = "level"
	MsgStatus       = "status"
	MsgTick         = "tick"
	MsgJobCompleted = "job_completed"
	MsgProgress     = "progress"
)

// Message is the envelope used on the WebSocket and the gRPC stream.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`

	// Commands
	Name       string `json:"name,omitempty"`
	Path       string `json:"path,omitempty"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Transcribe *bool  `json:"transcribe,omitempty"`

	// Events
	Level   int    `json:"level,omitempty"`
	Status  string `json:"status,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
	Seconds int64  `json:"seconds,omitempty"`
	Line    string `json:"line,omitempty"`

	// Responses
	Session  *session.Session `json:"session,omitempty"`
	Job      *transcribe.Job  `json:"job,omitempty"`
	Snapshot *service.Status  `json:"snapshot,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type startRequest struct {
	Name string `json:"name"`
}

type stopRequest struct {
	Transcribe *bool `json:"transcribe"`
}

type transcribeRequest struct {
	Path     string `json:"path" binding:"required"`
	Language string `json:"language"`
	Mode     string `json:"mode" binding:"omitempty,oneof=local remote"`
	Model    string `json:"model"`
}
