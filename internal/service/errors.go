package service

import (
	"errors"

	"interviewrec/session"
	"interviewrec/transcribe"
)

// IsPrecondition reports whether err is caused by a missing binary, device,
// credential, or input rather than a failure while running.
func IsPrecondition(err error) bool {
	for _, target := range []error{
		session.ErrEncoderUnavailable,
		session.ErrDeviceUnavailable,
		transcribe.ErrRecognizerNotFound,
		transcribe.ErrMissingCredential,
		transcribe.ErrUnknownMode,
		ErrSourceMissing,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict reports whether err means the operation collided with work
// already in progress.
func IsConflict(err error) bool {
	return errors.Is(err, transcribe.ErrBusy) || errors.Is(err, session.ErrAlreadyRecording)
}
