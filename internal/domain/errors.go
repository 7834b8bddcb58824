package domain

import "errors"

var (
	// ErrTranscriptionFailed means the speech-to-text provider produced no text.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrChannelUnavailable means a command could not be handed to the broker.
	ErrChannelUnavailable = errors.New("device channel unavailable")

	// ErrMalformedMessage marks an inbound payload that is not a DeviceCommand.
	ErrMalformedMessage = errors.New("malformed device message")

	// ErrPersistenceFailed means the transcript store rejected a record.
	ErrPersistenceFailed = errors.New("persisting transcript failed")
)
