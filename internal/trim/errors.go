package trim

import (
	"errors"
	"fmt"

	"github.com/bluenviron/mediatrim/internal/track"
)

// errors.
var (
	ErrSourceUnavailable     = errors.New("source file missing or unreadable")
	ErrDestinationUnwritable = errors.New("destination unwritable")
	ErrFormatUnrecognized    = errors.New("container format not recognized")
	ErrNoVideoTrack          = errors.New("no video track found")
	ErrInvalidRange          = errors.New("invalid time range")
	ErrCancelled             = errors.New("cancelled")
	ErrIO                    = errors.New("I/O failure")
	ErrBusy                  = errors.New("a trim is already in progress")
)

var reasons = []error{
	ErrSourceUnavailable,
	ErrDestinationUnwritable,
	ErrFormatUnrecognized,
	ErrNoVideoTrack,
	ErrInvalidRange,
	ErrCancelled,
	ErrBusy,
}

// Reason returns a human-readable reason of a failure.
// Known failures are reported without details; I/O failures include their cause.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return err.Error()
}

// mapError converts an error of the track layer into one of ours.
func mapError(err error) error {
	switch {
	case errors.Is(err, track.ErrSourceUnavailable):
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)

	case errors.Is(err, track.ErrFormatUnrecognized):
		return fmt.Errorf("%w: %w", ErrFormatUnrecognized, err)

	case errors.Is(err, track.ErrDestinationUnwritable):
		return fmt.Errorf("%w: %w", ErrDestinationUnwritable, err)
	}

	return fmt.Errorf("%w: %w", ErrIO, err)
}
