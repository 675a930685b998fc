// Package transcribe turns a finished recording into text, either with a
// local command-line recognizer or through a remote diarizing job service.
package transcribe

import "errors"

var (
	// ErrBusy is returned when a transcription is already in flight.
	ErrBusy = errors.New("transcription already in progress")
	// ErrUnknownMode is returned for a mode with no transcriber.
	ErrUnknownMode = errors.New("unknown transcription mode")

	ErrRecognizerNotFound      = errors.New("recognizer not found")
	ErrRecognizerOutputMissing = errors.New("recognizer produced no transcript")

	ErrMissingCredential   = errors.New("remote credential not set")
	ErrRemoteRequestFailed = errors.New("remote request failed")
	ErrRemoteJobFailed     = errors.New("remote job failed")
	ErrUnknownStatus       = errors.New("unknown remote job status")
	ErrRemoteTimeout       = errors.New("remote job timed out")
)
