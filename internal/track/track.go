// Package track contains a MP4 sample reader and a MP4 sample writer
// that copy elementary streams without decoding them.
package track

import (
	"errors"
	"time"
)

// errors.
var (
	ErrSourceUnavailable        = errors.New("source unavailable")
	ErrFormatUnrecognized       = errors.New("format unrecognized")
	ErrDestinationUnwritable    = errors.New("destination unwritable")
	ErrNoTrackSelected          = errors.New("no track selected")
	ErrSampleTooLarge           = errors.New("sample too large")
	ErrNonMonotonic             = errors.New("timestamps are not monotonically non-decreasing")
	ErrWriterStarted            = errors.New("writer already started")
	ErrWriterNotStarted         = errors.New("writer not started")
	ErrWriterClosed             = errors.New("writer closed")
	ErrUnsupportedMediaType     = errors.New("unsupported media type")
	ErrMissingSampleDescription = errors.New("sample description is missing")
)

// MediaType is the media type of a track.
type MediaType string

// media types.
const (
	MediaTypeVideo MediaType = "video"
	MediaTypeAudio MediaType = "audio"
)

func mediaTypeFromHandler(h [4]byte) MediaType {
	switch string(h[:]) {
	case "vide":
		return MediaTypeVideo

	case "soun":
		return MediaTypeAudio
	}
	return MediaType(string(h[:]))
}

// Format describes a track.
type Format struct {
	MediaType MediaType

	// fourCC of the sample entry, e.g. "avc1", "hvc1", "mp4a".
	Codec string

	TimeScale  uint32
	DurationUs int64
	Language   [3]byte

	// video parameters.
	Width  int
	Height int

	// audio parameters.
	SampleRate   int
	ChannelCount int

	// SampleDescription is the stsd box of the source, header included.
	// It is written verbatim into the output.
	SampleDescription []byte
}

// Flags are sample flags.
type Flags uint8

// sample flags.
const (
	FlagSync Flags = 1 << iota
	FlagEndOfStream
)

// Sample is an access unit.
type Sample struct {
	Payload []byte

	// decoding timestamp.
	TimeUs int64

	// difference between presentation and decoding timestamp.
	CompositionOffsetUs int64

	DurationUs int64
	Flags      Flags
}

// IsSync returns whether the sample can be decoded without previous samples.
func (s *Sample) IsSync() bool {
	return s.Flags&FlagSync != 0
}

func durationMp4ToGo(v int64, timeScale uint32) time.Duration {
	timeScale64 := int64(timeScale)
	secs := v / timeScale64
	dec := v % timeScale64
	return time.Duration(secs)*time.Second + time.Duration(dec)*time.Second/time.Duration(timeScale64)
}

func ticksToUs(v int64, timeScale uint32) int64 {
	return durationMp4ToGo(v, timeScale).Microseconds()
}

// usToTicks converts microseconds into ticks, rounding to the nearest tick
// in order to recover exact values from truncated conversions.
func usToTicks(v int64, timeScale uint32) int64 {
	if v < 0 {
		return -usToTicks(-v, timeScale)
	}

	timeScale64 := int64(timeScale)
	secs := v / 1000000
	dec := v % 1000000
	return secs*timeScale64 + (dec*timeScale64+500000)/1000000
}
