package track

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// SeekMode is a seek mode.
type SeekMode int

// seek modes.
const (
	// SeekPreviousSync moves to the closest sync sample at or before the given time.
	SeekPreviousSync SeekMode = iota

	// SeekNextSync moves to the closest sync sample at or after the given time.
	SeekNextSync

	// SeekClosestSync moves to the sync sample closest to the given time.
	SeekClosestSync
)

type sampleInfo struct {
	offset    uint64
	size      uint32
	dts       int64
	duration  uint32
	ptsOffset int32
	sync      bool
}

type readerTrack struct {
	format  *Format
	samples []sampleInfo
}

// Reader reads samples from a MP4 file.
// Both progressive and fragmented files are supported.
type Reader struct {
	Path string

	// maximum size of a sample. Zero means unlimited.
	MaxSampleSize uint64

	f               *os.File
	fileSize        int64
	movieDurationUs int64
	tracks          []*readerTrack
	selected        *readerTrack
	cursor          int
	closed          bool
}

// Initialize opens the file and reads its structure.
func (r *Reader) Initialize() error {
	f, err := os.Open(r.Path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	if fi.IsDir() {
		f.Close()
		return fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, r.Path)
	}

	r.f = f
	r.fileSize = fi.Size()

	err = r.parse()
	if err != nil {
		f.Close()
		r.f = nil
		return err
	}

	return nil
}

// Close closes the file. It can be called multiple times.
func (r *Reader) Close() {
	if r.closed {
		return
	}
	r.closed = true

	if r.f != nil {
		r.f.Close()
	}
}

// TrackCount returns the number of tracks.
func (r *Reader) TrackCount() int {
	return len(r.tracks)
}

// TrackFormat returns the format of a track.
func (r *Reader) TrackFormat(i int) *Format {
	return r.tracks[i].format
}

// Duration returns the duration declared by the movie header, in microseconds.
// It is zero when unknown.
func (r *Reader) Duration() int64 {
	return r.movieDurationUs
}

// SelectTrack selects the track that is read by ReadSample.
// Only one track can be selected at once; selecting a track
// deselects the previous one and moves the cursor to the first sample.
func (r *Reader) SelectTrack(i int) error {
	if i < 0 || i >= len(r.tracks) {
		return fmt.Errorf("invalid track index: %d", i)
	}

	r.selected = r.tracks[i]
	r.cursor = 0
	return nil
}

// SeekTo moves the cursor of the selected track to a sync sample, chosen with mode.
func (r *Reader) SeekTo(timeUs int64, mode SeekMode) error {
	if r.selected == nil {
		return ErrNoTrackSelected
	}

	samples := r.selected.samples
	if len(samples) == 0 {
		return nil
	}

	timeScale := r.selected.format.TimeScale

	// first sample whose timestamp is after timeUs
	after := sort.Search(len(samples), func(i int) bool {
		return ticksToUs(samples[i].dts, timeScale) > timeUs
	})

	prev := -1
	for i := after - 1; i >= 0; i-- {
		if samples[i].sync {
			prev = i
			break
		}
	}

	next := -1
	for i := after; i < len(samples); i++ {
		if samples[i].sync {
			next = i
			break
		}
	}

	// a sample at exactly timeUs is "next" too
	if prev >= 0 && ticksToUs(samples[prev].dts, timeScale) == timeUs {
		next = prev
	}

	switch mode {
	case SeekNextSync:
		if next < 0 {
			r.cursor = len(samples)
			return nil
		}
		r.cursor = next

	case SeekClosestSync:
		switch {
		case prev < 0 && next < 0:
			r.cursor = 0

		case prev < 0:
			r.cursor = next

		case next < 0:
			r.cursor = prev

		case timeUs-ticksToUs(samples[prev].dts, timeScale) <=
			ticksToUs(samples[next].dts, timeScale)-timeUs:
			r.cursor = prev

		default:
			r.cursor = next
		}

	default:
		if prev < 0 {
			prev = 0
		}
		r.cursor = prev
	}

	return nil
}

// SampleTimeUs returns the timestamp of the sample under the cursor.
// It returns false when the track is exhausted.
func (r *Reader) SampleTimeUs() (int64, bool) {
	if r.selected == nil || r.cursor >= len(r.selected.samples) {
		return 0, false
	}
	return ticksToUs(r.selected.samples[r.cursor].dts, r.selected.format.TimeScale), true
}

// Advance moves the cursor to the next sample.
// It returns false when the track is exhausted.
func (r *Reader) Advance() bool {
	if r.selected == nil || r.cursor >= len(r.selected.samples) {
		return false
	}
	r.cursor++
	return r.cursor < len(r.selected.samples)
}

// ReadSample reads the sample under the cursor and advances the cursor.
// It returns io.EOF when the track is exhausted.
func (r *Reader) ReadSample() (*Sample, error) {
	if r.selected == nil {
		return nil, ErrNoTrackSelected
	}

	if r.closed {
		return nil, os.ErrClosed
	}

	if r.cursor >= len(r.selected.samples) {
		return nil, io.EOF
	}

	info := r.selected.samples[r.cursor]
	timeScale := r.selected.format.TimeScale

	if r.MaxSampleSize != 0 && uint64(info.size) > r.MaxSampleSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSampleTooLarge, info.size)
	}

	if int64(info.offset)+int64(info.size) > r.fileSize {
		return nil, fmt.Errorf("sample at offset %d exceeds file size: %w", info.offset, io.ErrUnexpectedEOF)
	}

	payload := make([]byte, info.size)
	_, err := r.f.ReadAt(payload, int64(info.offset))
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	s := &Sample{
		Payload:             payload,
		TimeUs:              ticksToUs(info.dts, timeScale),
		CompositionOffsetUs: ticksToUs(int64(info.ptsOffset), timeScale),
		DurationUs:          ticksToUs(int64(info.duration), timeScale),
	}

	if info.sync {
		s.Flags |= FlagSync
	}

	r.cursor++

	if r.cursor == len(r.selected.samples) {
		s.Flags |= FlagEndOfStream
	}

	return s, nil
}
